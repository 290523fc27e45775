package services

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	waLog "go.mau.fi/whatsmeow/util/log"

	"github.com/faeln1/go-contact-groups/internal/domain/notification"
	"github.com/faeln1/go-contact-groups/pkg/eventlog"
)

// EventsDispatcher entrega eventos já confirmados ao assinante externo.
type EventsDispatcher interface {
	Dispatch(ctx context.Context, events []*notification.Event) error
}

type webhookEventsDispatcher struct {
	client *http.Client
	url    string
	token  string
	log    waLog.Logger
}

// NewWebhookEventsDispatcher cria um dispatcher com URL fixa (via env). Sem URL
// os eventos são descartados com um log de debug.
func NewWebhookEventsDispatcher(url, token string, client *http.Client, log waLog.Logger) EventsDispatcher {
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}
	if log == nil {
		log = waLog.Noop
	}
	return &webhookEventsDispatcher{
		client: client,
		url:    strings.TrimSpace(url),
		token:  strings.TrimSpace(token),
		log:    log,
	}
}

func (d *webhookEventsDispatcher) Dispatch(ctx context.Context, events []*notification.Event) error {
	if len(events) == 0 {
		return nil
	}
	if d.url == "" {
		d.log.Debugf("webhook de eventos ignorado: URL vazia (%d evento(s))", len(events))
		return nil
	}
	payload, err := json.Marshal(map[string]any{
		"timestamp": time.Now().UTC().Format(time.RFC3339),
		"events":    events,
	})
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, d.url, bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if d.token != "" {
		req.Header.Set("Authorization", "Bearer "+d.token)
	}

	d.log.Debugf("enviando %d evento(s) para %s", len(events), d.url)
	resp, err := d.client.Do(req)
	if err != nil {
		d.log.Warnf("falha ao enviar eventos: %v", err)
		return err
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)

	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		d.log.Warnf("webhook de eventos retornou status %d", resp.StatusCode)
		return fmt.Errorf("events webhook returned status %d", resp.StatusCode)
	}
	d.log.Debugf("webhook de eventos entregue com status %d", resp.StatusCode)
	return nil
}

type archivingDispatcher struct {
	next    EventsDispatcher
	archive *eventlog.Writer
	log     waLog.Logger
}

// WithArchive grava cada evento entregue com sucesso no arquivo local. Falhas de
// gravação só geram log: o arquivo é auxiliar e não bloqueia a entrega.
func WithArchive(next EventsDispatcher, archive *eventlog.Writer, log waLog.Logger) EventsDispatcher {
	if !archive.Enabled() {
		return next
	}
	if log == nil {
		log = waLog.Noop
	}
	return &archivingDispatcher{next: next, archive: archive, log: log}
}

func (d *archivingDispatcher) Dispatch(ctx context.Context, events []*notification.Event) error {
	if d.next != nil {
		if err := d.next.Dispatch(ctx, events); err != nil {
			return err
		}
	}
	for _, evt := range events {
		if _, err := d.archive.Write(string(evt.Type), evt.GroupID, evt); err != nil {
			d.log.Warnf("falha ao arquivar evento %d: %v", evt.Seq, err)
		}
	}
	return nil
}

// DispatcherFunc adapts a function to EventsDispatcher.
type DispatcherFunc func(ctx context.Context, events []*notification.Event) error

func (f DispatcherFunc) Dispatch(ctx context.Context, events []*notification.Event) error {
	if f == nil {
		return errors.New("dispatcher not configured")
	}
	return f(ctx, events)
}
