package bus

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/avast/retry-go/v4"
	"github.com/roffe/gocan"
	"github.com/roffe/gocan/adapter"
	"github.com/rs/zerolog"
	"go.bug.st/serial"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"
)

// AdapterConfig selects and configures a gocan adapter.
type AdapterConfig struct {
	Name     string
	Port     string
	Baudrate int
	CANRate  float64
	Filter   []uint32
	// MinSendInterval spaces outgoing frames; zero disables pacing.
	MinSendInterval time.Duration
	Attempts        uint
}

// GocanPort adapts a gocan client to Port. Received frames are pumped from the
// client on a separate goroutine and handed to every subscribed listener.
type GocanPort struct {
	c       *gocan.Client
	ctx     context.Context
	cancel  context.CancelFunc
	errg    *errgroup.Group
	limiter *rate.Limiter
	log     zerolog.Logger

	mu   sync.RWMutex
	subs listenerSet
}

// Open creates the adapter and the gocan client, retrying transient failures.
func Open(ctx context.Context, cfg AdapterConfig, log zerolog.Logger) (*GocanPort, error) {
	if cfg.Name == "" {
		return nil, errors.New("no adapter selected")
	}
	attempts := cfg.Attempts
	if attempts == 0 {
		attempts = 3
	}

	var cl *gocan.Client
	err := retry.Do(func() error {
		dev, err := adapter.New(cfg.Name, &gocan.AdapterConfig{
			Port:         cfg.Port,
			PortBaudrate: cfg.Baudrate,
			CANRate:      cfg.CANRate,
			CANFilter:    cfg.Filter,
			OnError: func(err error) {
				log.Error().Err(err).Msg("adapter error")
			},
			OnMessage: func(s string) {
				log.Debug().Str("adapter", cfg.Name).Msg(s)
			},
		})
		if err != nil {
			return retry.Unrecoverable(fmt.Errorf("failed to create adapter: %w", err))
		}
		c, err := gocan.New(ctx, dev)
		if err != nil {
			return fmt.Errorf("failed to create client: %w", err)
		}
		cl = c
		return nil
	},
		retry.Context(ctx),
		retry.DelayType(retry.FixedDelay),
		retry.Delay(1500*time.Millisecond),
		retry.Attempts(attempts),
		retry.LastErrorOnly(true),
		retry.OnRetry(func(n uint, err error) {
			log.Warn().Err(err).Uint("attempt", n+1).Msg("retrying adapter")
		}),
	)
	if err != nil {
		return nil, err
	}
	return NewGocanPort(ctx, cl, cfg.MinSendInterval, log), nil
}

func NewGocanPort(ctx context.Context, c *gocan.Client, minInterval time.Duration, log zerolog.Logger) *GocanPort {
	pctx, cancel := context.WithCancel(ctx)
	errg, gctx := errgroup.WithContext(pctx)
	p := &GocanPort{
		c:      c,
		ctx:    gctx,
		cancel: cancel,
		errg:   errg,
		log:    log,
	}
	if minInterval > 0 {
		p.limiter = rate.NewLimiter(rate.Every(minInterval), 1)
	}

	rx := c.SubscribeChan(gctx)
	errg.Go(func() error {
		for {
			select {
			case msg, ok := <-rx:
				if !ok {
					if gctx.Err() != nil {
						return nil
					}
					return errors.New("canRX closed")
				}
				p.dispatch(NewFrame(msg.Identifier(), msg.Data()))
			case <-gctx.Done():
				return nil
			}
		}
	})
	return p
}

func (p *GocanPort) dispatch(f Frame) {
	p.mu.RLock()
	listeners := p.subs.snapshot()
	p.mu.RUnlock()
	for _, fn := range listeners {
		fn(f)
	}
}

func (p *GocanPort) Send(f Frame) error {
	if err := f.Validate(); err != nil {
		return err
	}
	if p.limiter != nil {
		if err := p.limiter.Wait(p.ctx); err != nil {
			return err
		}
	}
	return p.c.Send(gocan.NewFrame(f.ID, f.Data, gocan.Outgoing))
}

func (p *GocanPort) Subscribe(fn Listener) Handle {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.subs.add(fn)
}

func (p *GocanPort) Unsubscribe(h Handle) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.subs.remove(h)
}

// Done is closed when the receive pump stops, either after Close or because
// the adapter went away.
func (p *GocanPort) Done() <-chan struct{} {
	return p.ctx.Done()
}

// Err returns why the receive pump stopped.
func (p *GocanPort) Err() error {
	return context.Cause(p.ctx)
}

func (p *GocanPort) Close() error {
	p.cancel()
	err := p.c.Close()
	if werr := p.errg.Wait(); werr != nil && err == nil {
		err = werr
	}
	return err
}

// Adapters lists the adapter names gocan was built with.
func Adapters() []string {
	return adapter.List()
}

// SerialPorts lists serial ports usable by serial based adapters.
func SerialPorts() ([]string, error) {
	ports, err := serial.GetPortsList()
	if err != nil {
		return nil, fmt.Errorf("failed to list serial ports: %w", err)
	}
	return ports, nil
}
