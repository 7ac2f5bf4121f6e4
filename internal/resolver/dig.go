package resolver

import (
	"bufio"
	"bytes"
	"context"
	"os/exec"
	"strconv"
	"strings"

	"github.com/miekg/dns"
)

// CommandRunner executes an external command and returns its stdout.
type CommandRunner func(ctx context.Context, name string, args ...string) ([]byte, error)

func execRunner(ctx context.Context, name string, args ...string) ([]byte, error) {
	return exec.CommandContext(ctx, name, args...).Output()
}

// DigBackend shells out to dig as a last resort.
type DigBackend struct {
	run CommandRunner
}

// NewDigBackend returns a dig backend. A nil runner executes the real binary.
func NewDigBackend(run CommandRunner) *DigBackend {
	if run == nil {
		run = execRunner
	}
	return &DigBackend{run: run}
}

// Name implements Backend.
func (b *DigBackend) Name() string {
	return "dig"
}

// Lookup implements Backend.
func (b *DigBackend) Lookup(ctx context.Context, host string, qtype uint16) ([]Answer, error) {
	typ := dns.TypeToString[qtype]
	out, err := b.run(ctx, "dig", "+noall", "+answer", host, typ)
	if err != nil {
		return nil, err
	}
	return parseDig(out, typ), nil
}

// parseDig reads "name ttl class type data" answer lines.
func parseDig(out []byte, typ string) []Answer {
	var answers []Answer
	scanner := bufio.NewScanner(bytes.NewReader(out))
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, ";") {
			continue
		}
		fields := strings.Fields(line)
		if len(fields) < 5 || !strings.EqualFold(fields[3], typ) {
			continue
		}
		ttl, _ := strconv.Atoi(fields[1])
		value := fields[4]
		if strings.EqualFold(typ, "A") {
			answers = append(answers, Answer{IP: value, TTL: ttl})
			continue
		}
		answers = append(answers, Answer{Data: value, TTL: ttl})
	}
	return answers
}
