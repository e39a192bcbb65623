// Package orchestrator is the entry point user interfaces use to fetch and
// write workspace documents. It picks a transport per call, dispatches the
// request and normalizes the answer.
package orchestrator

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/starford/izy/internal/apperr"
	"github.com/starford/izy/internal/bus"
	"github.com/starford/izy/internal/envdetect"
	"github.com/starford/izy/internal/models"
	"github.com/starford/izy/internal/normalize"
	"github.com/starford/izy/internal/notion"
)

// DefaultPublicRelay is the third-party relay used on the direct path when
// the user has not configured one and public relaying is allowed.
const DefaultPublicRelay = "https://corsproxy.io/?"

// Sender performs one correlated exchange with a peer.
type Sender interface {
	Send(ctx context.Context, msg bus.Message) (json.RawMessage, error)
}

// Orchestrator dispatches document requests over the detected transport.
type Orchestrator struct {
	detector envdetect.Detector
	frame    Sender
	runtime  Sender
	direct   *notion.Client

	allowPublicRelay bool
	publicRelay      string
	fallback         bool

	logger *slog.Logger
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithFrame sets the channel toward a parent frame's relay bridge.
func WithFrame(s Sender) Option {
	return func(o *Orchestrator) { o.frame = s }
}

// WithRuntime sets the channel toward the background executor.
func WithRuntime(s Sender) Option {
	return func(o *Orchestrator) { o.runtime = s }
}

// WithDetector overrides the transport detector.
func WithDetector(d envdetect.Detector) Option {
	return func(o *Orchestrator) { o.detector = d }
}

// WithPublicRelay allows the direct path to use relayURL when the user has
// no relay of their own. An empty relayURL selects DefaultPublicRelay.
func WithPublicRelay(relayURL string) Option {
	return func(o *Orchestrator) {
		o.allowPublicRelay = true
		if relayURL != "" {
			o.publicRelay = relayURL
		}
	}
}

// WithFallback makes a messaging transport failure retry once over the
// direct path.
func WithFallback(enabled bool) Option {
	return func(o *Orchestrator) { o.fallback = enabled }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(o *Orchestrator) {
		if l != nil {
			o.logger = l
		}
	}
}

// New creates an Orchestrator. direct serves the DirectNetwork strategy.
// Without WithDetector the strategy follows which channels were provided.
func New(direct *notion.Client, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		direct:      direct,
		publicRelay: DefaultPublicRelay,
		logger:      slog.Default(),
	}
	for _, opt := range opts {
		opt(o)
	}
	if o.detector == nil {
		o.detector = channelDetector{o}
	}
	return o
}

// channelDetector prefers whichever channels the Orchestrator holds, in the
// same priority order as envdetect.EnvDetector.
type channelDetector struct{ o *Orchestrator }

func (d channelDetector) Detect() envdetect.Strategy {
	switch {
	case d.o.frame != nil:
		return envdetect.SandboxRelay
	case d.o.runtime != nil:
		return envdetect.BackgroundMessaging
	default:
		return envdetect.DirectNetwork
	}
}

// FetchDocuments searches the workspace for query and returns the
// normalized documents. Items that cannot be normalized are dropped.
func (o *Orchestrator) FetchDocuments(ctx context.Context, settings models.Settings, query string) ([]models.Document, error) {
	if !settings.Configured() {
		return nil, apperr.ErrNotConfigured
	}

	req, err := bus.NewRequest(bus.TypeNotionSearch, bus.SearchPayload{Token: settings.NotionToken, Query: query})
	if err != nil {
		return nil, err
	}
	raw, err := o.dispatch(ctx, settings, req, func(c *notion.Client) (json.RawMessage, error) {
		return c.Search(ctx, settings.NotionToken, query)
	})
	if err != nil {
		return nil, err
	}

	items, err := notion.DecodeSearch(raw)
	if err != nil {
		return nil, fmt.Errorf("%w: unexpected search response: %v", apperr.ErrTransportFailure, err)
	}
	docs := normalize.NormalizeAll(items, o.logger)
	o.logger.Debug("orchestrator: documents fetched",
		slog.String("query", query),
		slog.Int("results", len(items)),
		slog.Int("kept", len(docs)),
	)
	return docs, nil
}

// AppendNote appends text as a paragraph to the block targetID.
func (o *Orchestrator) AppendNote(ctx context.Context, settings models.Settings, targetID, text string) error {
	if !settings.Configured() {
		return apperr.ErrNotConfigured
	}

	req, err := bus.NewRequest(bus.TypeNotionAppend, bus.AppendPayload{Token: settings.NotionToken, BlockID: targetID, Text: text})
	if err != nil {
		return err
	}
	_, err = o.dispatch(ctx, settings, req, func(c *notion.Client) (json.RawMessage, error) {
		return c.AppendParagraph(ctx, settings.NotionToken, targetID, text)
	})
	return err
}

func (o *Orchestrator) dispatch(
	ctx context.Context,
	settings models.Settings,
	req bus.Message,
	direct func(*notion.Client) (json.RawMessage, error),
) (json.RawMessage, error) {
	strategy := o.detector.Detect()

	var (
		raw json.RawMessage
		err error
	)
	switch strategy {
	case envdetect.SandboxRelay:
		raw, err = o.sendVia(ctx, o.frame, req)
	case envdetect.BackgroundMessaging:
		raw, err = o.sendVia(ctx, o.runtime, req)
	default:
		return direct(o.directClient(settings))
	}

	if err != nil && o.fallback && errors.Is(err, apperr.ErrTransportFailure) {
		o.logger.Warn("orchestrator: messaging failed, retrying over direct network",
			slog.String("strategy", strategy.String()),
			slog.String("error", err.Error()),
		)
		return direct(o.directClient(settings))
	}
	return raw, err
}

func (o *Orchestrator) sendVia(ctx context.Context, s Sender, req bus.Message) (json.RawMessage, error) {
	if s == nil {
		return nil, fmt.Errorf("%w: channel not available", apperr.ErrTransportFailure)
	}
	return s.Send(ctx, req)
}

// directClient returns the client for the direct path, routed through the
// user's relay when one is set.
func (o *Orchestrator) directClient(settings models.Settings) *notion.Client {
	switch {
	case settings.RelayURL != "":
		return o.direct.WithRewrite(notion.RelayPrefix(settings.RelayURL))
	case o.allowPublicRelay:
		return o.direct.WithRewrite(notion.RelayQuery(o.publicRelay))
	default:
		return o.direct
	}
}
