// Package cli implements the terminal channel adapter: a stdin/stdout
// loop honoring the core's channel contract (publish inbound, consume
// and render outbound).
package cli

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/pocketrb/core/pkg/models"
)

// Bus is the subset of the bus this channel needs.
type Bus interface {
	PublishInbound(ctx context.Context, m models.InboundMessage) error
	ConsumeOutbound(ctx context.Context) (models.OutboundMessage, bool, error)
}

const (
	// Type identifies this channel in InboundMessage.Channel /
	// OutboundMessage.Channel.
	Type = "cli"

	senderID = "user"
)

// Channel reads lines from in and publishes them as InboundMessage,
// while rendering outbound messages addressed to chatID to out. One
// Channel instance serves exactly one chat ("session") since a terminal
// has no notion of multiple simultaneous conversations.
type Channel struct {
	bus    Bus
	in     *bufio.Scanner
	out    io.Writer
	chatID string
	logger *slog.Logger
}

// New builds a Channel bound to chatID, reading from in and writing
// rendered outbound messages to out.
func New(bus Bus, in io.Reader, out io.Writer, chatID string, logger *slog.Logger) *Channel {
	if logger == nil {
		logger = slog.Default()
	}
	return &Channel{bus: bus, in: bufio.NewScanner(in), out: out, chatID: chatID, logger: logger}
}

// Start runs two loops until ctx is cancelled: one reading stdin lines
// and publishing them as inbound messages, one draining outbound
// messages addressed to this channel and printing them. Start blocks
// until ctx is done or stdin is exhausted.
func (c *Channel) Start(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		defer close(done)
		c.consumeOutbound(ctx)
	}()

	c.readInbound(ctx)

	<-ctx.Done()
	<-done
	return nil
}

func (c *Channel) readInbound(ctx context.Context) {
	lines := make(chan string)
	go func() {
		defer close(lines)
		for c.in.Scan() {
			lines <- c.in.Text()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return
		case line, ok := <-lines:
			if !ok {
				return
			}
			text := strings.TrimSpace(line)
			if text == "" {
				continue
			}
			msg := models.InboundMessage{
				Channel:  Type,
				SenderID: senderID,
				ChatID:   c.chatID,
				Content:  text,
			}
			if err := c.bus.PublishInbound(ctx, msg); err != nil {
				c.logger.Error("cli: publish inbound failed", "error", err)
			}
		}
	}
}

func (c *Channel) consumeOutbound(ctx context.Context) {
	for {
		msg, ok, err := c.bus.ConsumeOutbound(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			c.logger.Error("cli: consume outbound failed", "error", err)
			continue
		}
		if !ok {
			return
		}
		if msg.Channel != Type || msg.ChatID != c.chatID {
			continue
		}
		fmt.Fprintln(c.out, msg.Content)
		for _, m := range msg.Media {
			fmt.Fprintf(c.out, "[attachment: %s]\n", m.Filename)
		}
	}
}
