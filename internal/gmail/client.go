package gmail

import (
	"context"
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/ChaitanyaYeole02/gmail-cleaner/internal/config"
	"github.com/ChaitanyaYeole02/gmail-cleaner/internal/models"
	"github.com/rs/zerolog/log"
	gmailapi "google.golang.org/api/gmail/v1"
	"google.golang.org/api/option"
)

const (
	user = "me"
	// pageSize is the largest page the messages.list endpoint serves
	pageSize = 500
)

// Client wraps the Gmail API calls the scanner needs
type Client struct {
	srv *gmailapi.Service

	mu     sync.Mutex
	labels map[string]string // lower-cased name -> label id
}

// New wraps an existing Gmail service
func New(srv *gmailapi.Service) *Client {
	return &Client{srv: srv}
}

// NewFromConfig authenticates with the configured credentials and builds a client.
// When interactive is false a missing token fails with ErrNoToken instead of prompting.
func NewFromConfig(ctx context.Context, cfg *config.Config, in io.Reader, out io.Writer, interactive bool) (*Client, error) {
	if err := cfg.ValidateGmail(); err != nil {
		return nil, err
	}

	auth := &Authenticator{
		CredentialsPath: cfg.GmailCredentialsPath,
		TokenPath:       cfg.GmailTokenPath,
		In:              in,
		Out:             out,
	}
	httpClient, err := auth.Client(ctx, interactive)
	if err != nil {
		return nil, err
	}

	srv, err := gmailapi.NewService(ctx, option.WithHTTPClient(httpClient))
	if err != nil {
		return nil, fmt.Errorf("unable to create Gmail client: %w", err)
	}
	return New(srv), nil
}

// Profile returns the address of the authenticated mailbox
func (c *Client) Profile(ctx context.Context) (string, error) {
	p, err := c.srv.Users.GetProfile(user).Context(ctx).Do()
	if err != nil {
		return "", fmt.Errorf("unable to retrieve profile: %w", err)
	}
	return p.EmailAddress, nil
}

// Search lists messages matching query and fetches each one in full.
// max <= 0 means no limit. Messages that fail to load are logged and skipped.
func (c *Client) Search(ctx context.Context, query string, max int) ([]models.Email, error) {
	ids, err := c.listIDs(ctx, query, max)
	if err != nil {
		return nil, err
	}
	log.Info().Int("count", len(ids)).Str("query", query).Msg("Found messages")

	emails := make([]models.Email, 0, len(ids))
	for _, id := range ids {
		if err := ctx.Err(); err != nil {
			return emails, err
		}
		msg, err := c.srv.Users.Messages.Get(user, id).Format("full").Context(ctx).Do()
		if err != nil {
			log.Warn().Err(err).Str("message_id", id).Msg("Unable to retrieve message")
			continue
		}
		emails = append(emails, ParseMessage(msg))
	}
	return emails, nil
}

func (c *Client) listIDs(ctx context.Context, query string, max int) ([]string, error) {
	var ids []string
	pageToken := ""
	for {
		size := int64(pageSize)
		if max > 0 && max-len(ids) < pageSize {
			size = int64(max - len(ids))
		}

		call := c.srv.Users.Messages.List(user).Q(query).MaxResults(size).Context(ctx)
		if pageToken != "" {
			call = call.PageToken(pageToken)
		}
		r, err := call.Do()
		if err != nil {
			return nil, fmt.Errorf("unable to retrieve messages: %w", err)
		}

		for _, m := range r.Messages {
			ids = append(ids, m.Id)
			if max > 0 && len(ids) >= max {
				return ids, nil
			}
		}

		if r.NextPageToken == "" {
			return ids, nil
		}
		pageToken = r.NextPageToken
	}
}

// Attachment downloads and decodes one attachment
func (c *Client) Attachment(ctx context.Context, messageID, attachmentID string) ([]byte, error) {
	att, err := c.srv.Users.Messages.Attachments.Get(user, messageID, attachmentID).Context(ctx).Do()
	if err != nil {
		return nil, fmt.Errorf("unable to retrieve attachment: %w", err)
	}
	data, err := decodeBase64(att.Data)
	if err != nil {
		return nil, fmt.Errorf("unable to decode attachment: %w", err)
	}
	return data, nil
}

// EnsureLabel returns the id of the label with the given name, creating it if needed.
// Names are compared case-insensitively, the way Gmail itself does.
func (c *Client) EnsureLabel(ctx context.Context, name string) (string, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return "", fmt.Errorf("label name is empty")
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.labels == nil {
		r, err := c.srv.Users.Labels.List(user).Context(ctx).Do()
		if err != nil {
			return "", fmt.Errorf("unable to list labels: %w", err)
		}
		c.labels = make(map[string]string, len(r.Labels))
		for _, l := range r.Labels {
			c.labels[strings.ToLower(l.Name)] = l.Id
		}
	}

	if id, ok := c.labels[strings.ToLower(name)]; ok {
		return id, nil
	}

	created, err := c.srv.Users.Labels.Create(user, &gmailapi.Label{
		Name:                  name,
		LabelListVisibility:   "labelShow",
		MessageListVisibility: "show",
	}).Context(ctx).Do()
	if err != nil {
		return "", fmt.Errorf("unable to create label %q: %w", name, err)
	}

	log.Info().Str("label", name).Msg("Created new label")
	c.labels[strings.ToLower(name)] = created.Id
	return created.Id, nil
}

// AddLabel attaches a label to a message
func (c *Client) AddLabel(ctx context.Context, messageID, labelID string) error {
	_, err := c.srv.Users.Messages.Modify(user, messageID, &gmailapi.ModifyMessageRequest{
		AddLabelIds: []string{labelID},
	}).Context(ctx).Do()
	if err != nil {
		return fmt.Errorf("unable to label message %s: %w", messageID, err)
	}
	log.Debug().Str("message_id", messageID).Str("label_id", labelID).Msg("Added label to message")
	return nil
}
