// Package notify renders a purpose template and queues the result in the outbox.
package notify

import (
	"context"
	"fmt"

	"github.com/go-auth-nosql/internal/application/templates"
	"github.com/go-auth-nosql/internal/domain"
)

type Renderer interface {
	Render(ctx context.Context, purpose string, d templates.Data) (templates.Message, error)
}

type Queue interface {
	Enqueue(ctx context.Context, purpose, to, subject, html string) (*domain.OutboxMessage, error)
}

// Notifier queues mail; it never talks to SMTP directly.
type Notifier struct {
	renderer Renderer
	queue    Queue
	siteURL  string
}

func New(renderer Renderer, queue Queue, siteURL string) *Notifier {
	return &Notifier{renderer: renderer, queue: queue, siteURL: siteURL}
}

// Notify renders purpose for to and enqueues it. SiteURL is filled in when empty.
func (n *Notifier) Notify(ctx context.Context, purpose, to string, d templates.Data) error {
	if d.SiteURL == "" {
		d.SiteURL = n.siteURL
	}
	if d.Email == "" {
		d.Email = to
	}
	msg, err := n.renderer.Render(ctx, purpose, d)
	if err != nil {
		return fmt.Errorf("render %s mail: %w", purpose, err)
	}
	if _, err := n.queue.Enqueue(ctx, purpose, to, msg.Subject, msg.HTML); err != nil {
		return err
	}
	return nil
}

// ForAccount builds template data for an existing account.
func ForAccount(a *domain.Account, code string) templates.Data {
	return templates.Data{
		Email:     a.Email,
		UserName:  a.Username,
		AccountID: a.AccountID,
		Code:      code,
		Perm:      a.Permissions(),
	}
}
