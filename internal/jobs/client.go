package jobs

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/rs/zerolog"

	"github.com/brunopistone/sm-iot-end-to-end/internal/model"
)

// MaxNameLength is the provider limit on job names
const MaxNameLength = 63

// Client submits jobs and names them from the submission time
type Client struct {
	service Service
	clock   clock.Clock
	log     zerolog.Logger
}

// NewClient creates a job client over a remote service
func NewClient(service Service, clk clock.Clock, log zerolog.Logger) *Client {
	if clk == nil {
		clk = clock.New()
	}
	return &Client{
		service: service,
		clock:   clk,
		log:     log.With().Str("component", "jobs").Logger(),
	}
}

// Submit creates a job and returns its ID
func (c *Client) Submit(ctx context.Context, kind model.JobKind, spec Spec) (string, error) {
	if err := checkSpec(kind, spec); err != nil {
		return "", &SubmissionError{Kind: kind, Err: err}
	}

	prefix := spec.NamePrefix
	if prefix == "" {
		prefix = strings.ToLower(string(kind))
	}
	id := JobName(prefix, c.clock.Now())

	c.log.Info().Str("kind", string(kind)).Str("job", id).Msg("submitting job")
	if err := c.service.Create(ctx, kind, id, spec); err != nil {
		c.log.Error().Err(err).Str("kind", string(kind)).Str("job", id).Msg("job rejected")
		return "", &SubmissionError{Kind: kind, JobID: id, Err: err}
	}

	return id, nil
}

// Describe returns the current state of a job
func (c *Client) Describe(ctx context.Context, kind model.JobKind, id string) (model.Job, error) {
	return c.service.Describe(ctx, kind, id)
}

// JobName builds "<prefix>-<unix millis>", trimming the prefix to fit MaxNameLength
func JobName(prefix string, at time.Time) string {
	suffix := "-" + strconv.FormatInt(at.UnixMilli(), 10)
	prefix = sanitizeName(prefix)
	if limit := MaxNameLength - len(suffix); len(prefix) > limit {
		prefix = strings.TrimRight(prefix[:limit], "-")
	}
	return prefix + suffix
}

// sanitizeName replaces characters the provider rejects in job names
func sanitizeName(s string) string {
	var b strings.Builder
	for _, r := range s {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
			b.WriteRune(r)
		default:
			b.WriteRune('-')
		}
	}
	out := strings.Trim(b.String(), "-")
	if out == "" {
		return "job"
	}
	return out
}

func checkSpec(kind model.JobKind, spec Spec) error {
	if _, ok := model.ParseJobKind(string(kind)); !ok {
		return fmt.Errorf("unknown job kind %q", kind)
	}
	switch kind {
	case model.KindCompilation:
		if spec.Compilation == nil {
			return errors.New("compilation settings are required")
		}
		if spec.Compilation.ModelURI == "" {
			return errors.New("compilation model URI is required")
		}
	case model.KindPackaging:
		if spec.Packaging == nil {
			return errors.New("packaging settings are required")
		}
		if spec.Packaging.CompilationJob == "" {
			return errors.New("packaging needs a compilation job")
		}
	case model.KindTransform:
		if spec.Transform == nil || spec.Transform.ModelName == "" {
			return errors.New("transform needs a model name")
		}
	}
	return nil
}
