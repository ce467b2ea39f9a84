// Package notify posts release notes and diff reports to Slack.
package notify

import (
	"context"
	"log/slog"
	"strings"

	"github.com/cockroachdb/errors"
	"github.com/slack-go/slack"

	"github.com/mattjoyce/nodesync/internal/transport"
)

// DefaultAPIURL is Slack's Web API root.
const DefaultAPIURL = slack.APIURL

// Slack posts to a single channel through the Web API.
type Slack struct {
	api     *slack.Client
	channel string
	logger  *slog.Logger
}

// NewSlack creates a client posting to channel. An empty apiURL means
// DefaultAPIURL. Requests go through the retrying transport.
func NewSlack(apiURL, token, channel string, p transport.Policy, logger *slog.Logger) *Slack {
	if apiURL == "" {
		apiURL = DefaultAPIURL
	}
	if logger == nil {
		logger = slog.Default()
	}
	api := slack.New(token,
		slack.OptionAPIURL(strings.TrimRight(apiURL, "/")+"/"),
		slack.OptionHTTPClient(transport.NewClient(p, logger).StandardClient()),
	)
	return &Slack{
		api:     api,
		channel: channel,
		logger:  logger.With(slog.String("component", "notify")),
	}
}

// PostMessage posts text to the channel.
func (s *Slack) PostMessage(ctx context.Context, text string) error {
	_, _, err := s.api.PostMessageContext(ctx, s.channel, slack.MsgOptionText(text, false))
	return errors.Wrap(err, "chat.postMessage")
}

// UploadFile shares content as a file named filename in the channel.
func (s *Slack) UploadFile(ctx context.Context, filename, content string) error {
	if content == "" {
		return errors.Newf("upload %s: empty file", filename)
	}
	_, err := s.api.UploadFileV2Context(ctx, slack.UploadFileV2Parameters{
		Channel:  s.channel,
		Filename: filename,
		Title:    filename,
		Content:  content,
		FileSize: len(content),
	})
	return errors.Wrapf(err, "upload %s", filename)
}

// Release announces a release and attaches the diff report. Failures are
// logged as warnings and never returned.
func (s *Slack) Release(ctx context.Context, environment, releaseURL, report string) {
	if releaseURL != "" {
		if err := s.PostMessage(ctx, "This release can be found at: "+releaseURL); err != nil {
			s.logger.Warn("Failed to post release message", "error", err)
		}
	}
	if err := s.UploadFile(ctx, environment+"-diff.txt", report); err != nil {
		s.logger.Warn("Failed to upload diff report", "error", err)
		return
	}
	s.logger.Info("Posted diff report", "channel", s.channel)
}
