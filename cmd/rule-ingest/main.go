// Command rule-ingest bulk-imports pricing rules from gzipped JSONL exports.
// Each line of each input file is one rule document. Files are parsed and
// validated concurrently; writes go through a single upsert pass so reruns
// are safe.
package main

import (
	"bufio"
	"context"
	"encoding/json"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"time"

	"github.com/go-faster/errors"
	"github.com/google/uuid"
	pgzip "github.com/klauspost/pgzip"
	"golang.org/x/sync/errgroup"

	"github.com/borhen68/framatale-sub001/internal/domain/rule"
	"github.com/borhen68/framatale-sub001/internal/storage/postgres"
)

const progressEvery = 1000

// ruleJSON is the wire form of one exported rule: scalar metadata plus the
// kind-specific payloads flattened into the same object.
type ruleJSON struct {
	ID         string          `json:"id"`
	Name       string          `json:"name"`
	Kind       rule.Kind       `json:"kind"`
	Scope      rule.Scope      `json:"scope"`
	Priority   int             `json:"priority"`
	Active     *bool           `json:"active"`
	ValidFrom  *time.Time      `json:"validFrom"`
	ValidUntil *time.Time      `json:"validUntil"`
	Conditions rule.Conditions `json:"conditions"`
	CreatedAt  time.Time       `json:"createdAt"`

	rule.Payload
}

func main() {
	var (
		dataDir     string
		databaseURL string
	)

	flag.StringVar(&dataDir, "data-dir", "data", "directory containing *.jsonl.gz rule export files")
	flag.StringVar(&databaseURL, "database-url", "", "PostgreSQL connection URL (or DATABASE_URL env)")
	flag.Parse()

	if databaseURL == "" {
		databaseURL = os.Getenv("DATABASE_URL")
	}
	if databaseURL == "" {
		slog.Error("database URL is required: set --database-url or DATABASE_URL")
		os.Exit(1)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	if err := run(ctx, dataDir, databaseURL); err != nil {
		slog.Error("rule ingest failed", slog.String("error", err.Error()))
		os.Exit(1)
	}

	slog.Info("rule ingest completed successfully")
}

func run(ctx context.Context, dataDir, databaseURL string) error {
	files, err := filepath.Glob(filepath.Join(dataDir, "*.jsonl.gz"))
	if err != nil {
		return errors.Wrap(err, "list export files")
	}
	if len(files) == 0 {
		return errors.Errorf("no *.jsonl.gz files in %s", dataDir)
	}

	slog.Info("parsing rule exports", slog.Int("files", len(files)))

	parsed, err := parseFiles(ctx, files)
	if err != nil {
		return errors.Wrap(err, "parse rule exports")
	}

	slog.Info("rules parsed", slog.Int("count", len(parsed)))

	slog.Info("connecting to database")

	pool, err := postgres.NewPool(ctx, databaseURL)
	if err != nil {
		return errors.Wrap(err, "connect to database")
	}
	defer pool.Close()

	if err := postgres.RunMigrations(ctx, pool); err != nil {
		return errors.Wrap(err, "run migrations")
	}

	if err := writeRules(ctx, postgres.NewRuleStore(pool), parsed); err != nil {
		return errors.Wrap(err, "write rules to database")
	}

	return nil
}

// parseFiles decodes and validates every file concurrently. Later files win
// on duplicate ids, matching the upsert order below.
func parseFiles(ctx context.Context, files []string) ([]*rule.Rule, error) {
	perFile := make([][]*rule.Rule, len(files))

	g, ctx := errgroup.WithContext(ctx)
	for i, f := range files {
		g.Go(parseFile(ctx, i, f, perFile))
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	var all []*rule.Rule
	for _, rules := range perFile {
		all = append(all, rules...)
	}
	return all, nil
}

func parseFile(ctx context.Context, idx int, path string, out [][]*rule.Rule) func() error {
	return func() error {
		f, err := os.Open(path)
		if err != nil {
			return errors.Wrapf(err, "open %s", path)
		}
		defer func() { _ = f.Close() }()

		gz, err := pgzip.NewReader(f)
		if err != nil {
			return errors.Wrapf(err, "create gzip reader for %s", path)
		}
		defer func() { _ = gz.Close() }()

		var (
			rules []*rule.Rule
			line  int
		)
		scanner := bufio.NewScanner(gz)
		scanner.Buffer(make([]byte, 0, 1<<20), 1<<20)
		for scanner.Scan() {
			if err := ctx.Err(); err != nil {
				return err
			}
			line++
			if len(scanner.Bytes()) == 0 {
				continue
			}

			r, err := decodeRule(scanner.Bytes())
			if err != nil {
				return errors.Wrapf(err, "%s line %d", path, line)
			}
			rules = append(rules, r)

			if line%progressEvery == 0 {
				slog.Info("parse progress", slog.String("file", filepath.Base(path)), slog.Int("lines", line))
			}
		}
		if err := scanner.Err(); err != nil {
			return errors.Wrapf(err, "scan %s", path)
		}

		slog.Info("parse complete", slog.String("file", filepath.Base(path)), slog.Int("rules", len(rules)))
		out[idx] = rules
		return nil
	}
}

func decodeRule(data []byte) (*rule.Rule, error) {
	var doc ruleJSON
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, errors.Wrap(err, "parse rule JSON")
	}

	r := &rule.Rule{
		ID:         doc.ID,
		Name:       doc.Name,
		Kind:       doc.Kind,
		Scope:      doc.Scope,
		Priority:   doc.Priority,
		Active:     true,
		ValidFrom:  doc.ValidFrom,
		ValidUntil: doc.ValidUntil,
		Conditions: doc.Conditions,
		CreatedAt:  doc.CreatedAt,
	}
	if doc.Active != nil {
		r.Active = *doc.Active
	}
	if r.ID == "" {
		r.ID = uuid.New().String()
	}
	if r.Scope == "" {
		r.Scope = rule.ScopeGlobal
	}
	if err := doc.Payload.Apply(r); err != nil {
		return nil, err
	}
	if err := r.Validate(); err != nil {
		return nil, err
	}
	return r, nil
}

// writeRules upserts all parsed rules.
func writeRules(ctx context.Context, store *postgres.RuleStore, rules []*rule.Rule) error {
	slog.Info("writing rules to database", slog.Int("count", len(rules)))

	now := time.Now()
	for i, r := range rules {
		if r.CreatedAt.IsZero() {
			r.CreatedAt = now
		}
		r.UpdatedAt = now

		if err := store.Upsert(ctx, r); err != nil {
			return errors.Wrapf(err, "upsert rule %s", r.ID)
		}

		if (i+1)%100 == 0 || i+1 == len(rules) {
			slog.Info("write progress", slog.Int("written", i+1), slog.Int("total", len(rules)))
		}
	}

	return nil
}
