package binance

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"broker/internal/schema"
	"broker/pkg/exception"

	"github.com/yanun0323/logs"
	"github.com/yanun0323/pkg/sys"
	"github.com/yanun0323/pkg/ws"
	"gopkg.in/tomb.v2"
)

const _keepAliveInterval = 30 * time.Minute

// ListenKeys manages user data stream listen keys.
type ListenKeys interface {
	CreateListenKey(ctx context.Context) (string, error)
	KeepAliveListenKey(ctx context.Context, listenKey string) error
	CloseListenKey(ctx context.Context, listenKey string) error
}

// Handler receives user data stream events one at a time in arrival order.
type Handler func(schema.Event) error

// UserStream delivers account and order updates of one listen key.
type UserStream struct {
	keys      ListenKeys
	streamURL string
	keepAlive time.Duration
}

// NewUserStream creates a user data stream on the given websocket base url.
func NewUserStream(keys ListenKeys, streamURL string) *UserStream {
	if streamURL == "" {
		streamURL = StreamURL
	}
	return &UserStream{
		keys:      keys,
		streamURL: strings.TrimRight(streamURL, "/"),
		keepAlive: _keepAliveInterval,
	}
}

// Run connects and feeds events to handler until ctx is done, the process
// shuts down or the connection fails. A failure returns an error wrapping
// exception.ErrConnectivity; reconnecting is left to the caller.
func (s *UserStream) Run(ctx context.Context, handler Handler) error {
	listenKey, err := s.keys.CreateListenKey(ctx)
	if err != nil {
		return fmt.Errorf("%w: create listen key: %v", exception.ErrConnectivity, err)
	}
	if listenKey == "" {
		return exception.ErrEmptyListenKey
	}
	defer s.closeListenKey(listenKey)

	wss := ws.New(ctx, s.streamURL+"/"+listenKey)
	if err := wss.Start(ctx); err != nil {
		return fmt.Errorf("%w: start user stream: %v", exception.ErrConnectivity, err)
	}
	defer wss.Close()

	ch, unsubscribe := wss.Subscribe()
	defer unsubscribe()

	t, tctx := tomb.WithContext(ctx)
	t.Go(func() error {
		return s.keepListenKey(t, tctx, listenKey)
	})
	t.Go(func() error {
		for {
			select {
			case <-sys.Shutdown():
				t.Kill(nil)
				return nil
			case <-t.Dying():
				return nil
			case m, ok := <-ch:
				if !ok {
					return fmt.Errorf("%w: %w", exception.ErrConnectivity, exception.ErrStreamClosed)
				}

				ev, ok, err := decodeEvent(m.Unmarshal)
				if err != nil {
					logs.Errorf("decode user stream message, err: %+v", err)
					continue
				}
				if !ok {
					continue
				}

				if err := handler(ev); err != nil {
					if errors.Is(err, exception.ErrConnectivity) {
						return err
					}
					logs.Errorf("handle %s event, err: %+v", ev.Type, err)
				}
			}
		}
	})

	err = t.Wait()
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

func (s *UserStream) keepListenKey(t *tomb.Tomb, ctx context.Context, listenKey string) error {
	ticker := time.NewTicker(s.keepAlive)
	defer ticker.Stop()
	for {
		select {
		case <-t.Dying():
			return nil
		case <-ticker.C:
			if err := s.keys.KeepAliveListenKey(ctx, listenKey); err != nil {
				logs.Errorf("keep alive listen key, err: %+v", err)
				continue
			}
			logs.Info("listen key kept alive")
		}
	}
}

func (s *UserStream) closeListenKey(listenKey string) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := s.keys.CloseListenKey(ctx, listenKey); err != nil {
		logs.Errorf("close listen key, err: %+v", err)
	}
}
