package main

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

// Mailbox is the one-directional queue a companion site fills with codes.
// It is a Redis list under a single key.
type Mailbox struct {
	rdb *redis.Client
	key string
}

func NewMailbox(rdb *redis.Client, key string) *Mailbox {
	return &Mailbox{rdb: rdb, key: key}
}

// OpenMailbox connects using cfg, or returns nil when no Redis address is configured.
func OpenMailbox(ctx context.Context, cfg MailboxConfig) (*Mailbox, error) {
	if strings.TrimSpace(cfg.RedisAddr) == "" {
		return nil, nil
	}
	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})
	if err := rdb.Ping(ctx).Err(); err != nil {
		rdb.Close()
		return nil, fmt.Errorf("connect to mailbox redis %s: %w", cfg.RedisAddr, err)
	}
	return NewMailbox(rdb, cfg.Key), nil
}

func (m *Mailbox) Close() error {
	return m.rdb.Close()
}

// pushOnce appends ARGV[1] to the list unless it is already there.
var pushOnce = redis.NewScript(`
local queued = redis.call('LRANGE', KEYS[1], 0, -1)
for _, v in ipairs(queued) do
	if v == ARGV[1] then
		return 0
	end
end
redis.call('RPUSH', KEYS[1], ARGV[1])
return 1
`)

// Push appends code unless it is already waiting. It reports whether it was added.
// The check and the append run as one script, so concurrent pushes never duplicate.
func (m *Mailbox) Push(ctx context.Context, code string) (bool, error) {
	added, err := pushOnce.Run(ctx, m.rdb, []string{m.key}, code).Int()
	if err != nil {
		return false, fmt.Errorf("push to mailbox: %w", err)
	}
	return added == 1, nil
}

// Drain takes every waiting code and clears the mailbox in one MULTI/EXEC,
// so a code pushed mid-drain is either returned now or left for the next drain.
// The mailbox is cleared even when reading fails, so a bad payload is dropped
// rather than read again on every poll.
func (m *Mailbox) Drain(ctx context.Context) ([]string, error) {
	var read *redis.StringSliceCmd
	_, err := m.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		read = pipe.LRange(ctx, m.key, 0, -1)
		pipe.Del(ctx, m.key)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("drain mailbox: %w", err)
	}
	codes := read.Val()
	if len(codes) == 0 {
		return nil, nil
	}
	return codes, nil
}

// MailboxPoller drains the mailbox on a fixed interval and feeds the controller.
type MailboxPoller struct {
	mailbox    *Mailbox
	controller *Controller
	log        *StatusLog
	interval   time.Duration
	notify     chan struct{}

	cancel context.CancelFunc
	done   chan struct{}
}

func NewMailboxPoller(mailbox *Mailbox, controller *Controller, log *StatusLog, interval time.Duration) *MailboxPoller {
	return &MailboxPoller{
		mailbox:    mailbox,
		controller: controller,
		log:        log,
		interval:   interval,
		notify:     make(chan struct{}, 1),
	}
}

// Delivered is signalled after a drain that delivered codes.
func (p *MailboxPoller) Delivered() <-chan struct{} {
	return p.notify
}

// Start runs the poller in the background until ctx ends or Halt is called.
func (p *MailboxPoller) Start(ctx context.Context) {
	ctx, p.cancel = context.WithCancel(ctx)
	p.done = make(chan struct{})
	go func() {
		defer close(p.done)
		p.Run(ctx)
	}()
}

// Halt stops a started poller and waits until no drain is in progress.
func (p *MailboxPoller) Halt() {
	if p.cancel == nil {
		return
	}
	p.cancel()
	<-p.done
}

func (p *MailboxPoller) Run(ctx context.Context) {
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.PollOnce(ctx)
		}
	}
}

// PollOnce performs one drain and returns how many codes were received.
func (p *MailboxPoller) PollOnce(ctx context.Context) int {
	codes, err := p.mailbox.Drain(ctx)
	if err != nil {
		p.log.Error(T("mailbox_error", err))
		return 0
	}
	if len(codes) == 0 {
		return 0
	}

	p.controller.AppendInput(strings.Join(codes, "\n"))
	p.log.OK(T("mailbox_received", len(codes)))
	if p.controller.Phase() == PhaseIdle {
		p.controller.Enqueue()
	}

	select {
	case p.notify <- struct{}{}:
	default:
	}
	return len(codes)
}
