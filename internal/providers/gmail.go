package providers

import (
	"context"
	"encoding/base64"
	"errors"
	"net/mail"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"google.golang.org/api/gmail/v1"
)

const (
	gmailUser        = "me"
	gmailInboxQuery  = "in:inbox"
	gmailFormatFull  = "full"
	gmailUnreadLabel = "UNREAD"
)

// Emails lists the newest inbox messages, fetching details with bounded concurrency.
// Messages that fail to load are skipped.
func (p *GoogleProvider) Emails(ctx context.Context, userID int64, maxResults int) ([]Email, error) {
	if maxResults <= 0 {
		maxResults = defaultEmailResults
	}
	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	client, err := p.manager.Client(ctx, userID)
	if err != nil {
		return nil, err
	}
	service, err := gmail.NewService(ctx, p.clientOptions(client, p.gmailEndpoint)...)
	if err != nil {
		return nil, err
	}

	listing, err := service.Users.Messages.List(gmailUser).
		Q(gmailInboxQuery).
		MaxResults(int64(maxResults)).
		Context(ctx).
		Do()
	if err != nil {
		return []Email{}, p.listingFailed(OperationListEmails, userID, err)
	}

	fetched := make([]*Email, len(listing.Messages))
	var group errgroup.Group
	group.SetLimit(p.concurrency)
	for index, ref := range listing.Messages {
		index, ref := index, ref
		group.Go(func() error {
			message, getErr := service.Users.Messages.Get(gmailUser, ref.Id).
				Format(gmailFormatFull).
				Context(ctx).
				Do()
			if getErr != nil {
				p.logger.Warn("gmail message fetch failed",
					zap.Int64("user_id", userID),
					zap.String("message_id", ref.Id),
					zap.Error(getErr))
				return nil
			}
			email := p.toEmail(message)
			fetched[index] = &email
			return nil
		})
	}
	_ = group.Wait()

	emails := make([]Email, 0, len(fetched))
	for _, email := range fetched {
		if email != nil {
			emails = append(emails, *email)
		}
	}
	if p.strict && len(listing.Messages) > 0 && len(emails) == 0 {
		return nil, &UnavailableError{
			Provider:  p.Name(),
			Operation: OperationListEmails,
			Err:       errors.New("every message fetch failed"),
		}
	}
	return emails, nil
}

func (p *GoogleProvider) toEmail(message *gmail.Message) Email {
	email := Email{
		ID:       message.Id,
		ThreadID: message.ThreadId,
		IsRead:   true,
		Provider: p.Name(),
	}
	for _, label := range message.LabelIds {
		if label == gmailUnreadLabel {
			email.IsRead = false
			break
		}
	}
	if message.Payload == nil {
		return email
	}
	var rawDate string
	for _, header := range message.Payload.Headers {
		switch strings.ToLower(header.Name) {
		case "subject":
			email.Subject = header.Value
		case "from":
			email.From = header.Value
		case "to":
			email.To = header.Value
		case "date":
			rawDate = header.Value
		}
	}
	email.Date = messageDate(rawDate, message.InternalDate)
	email.Body = messageBody(message.Payload)
	return email
}

// messageDate parses the Date header, falling back to Gmail's internal timestamp in milliseconds.
func messageDate(header string, internalDate int64) *time.Time {
	if header != "" {
		if parsed, err := mail.ParseDate(header); err == nil {
			parsed = parsed.UTC()
			return &parsed
		}
	}
	if internalDate > 0 {
		parsed := time.UnixMilli(internalDate).UTC()
		return &parsed
	}
	return nil
}

func messageBody(payload *gmail.MessagePart) string {
	if payload == nil {
		return ""
	}
	if payload.Body != nil && payload.Body.Data != "" {
		return decodeBodyData(payload.Body.Data)
	}
	return textPartBody(payload.Parts)
}

// textPartBody returns the first text/plain or text/html body, descending into multipart containers.
func textPartBody(parts []*gmail.MessagePart) string {
	for _, part := range parts {
		if part == nil {
			continue
		}
		mimeType := strings.ToLower(part.MimeType)
		if (mimeType == "text/plain" || mimeType == "text/html") && part.Body != nil && part.Body.Data != "" {
			return decodeBodyData(part.Body.Data)
		}
		if strings.HasPrefix(mimeType, "multipart/") {
			if body := textPartBody(part.Parts); body != "" {
				return body
			}
		}
	}
	return ""
}

func decodeBodyData(data string) string {
	decoded, err := base64.URLEncoding.DecodeString(data)
	if err != nil {
		decoded, err = base64.RawURLEncoding.DecodeString(strings.TrimRight(data, "="))
		if err != nil {
			return ""
		}
	}
	return string(decoded)
}
