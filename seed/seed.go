// Package seed synchronizes seed data into tables.
//
// Every record is identified by a stable identifier that is generated once and
// reused on subsequent runs. Records are written with a full replacement put,
// so running the same seed twice results in the same table contents.
package seed

import (
	"context"
	"sort"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// A Store reads and writes table items.
type Store interface {
	// PutItem creates or fully replaces the item with the same primary key.
	PutItem(ctx context.Context, table string, item map[string]interface{}) error

	// ScanItems returns all items in a table.
	ScanItems(ctx context.Context, table string) ([]map[string]interface{}, error)
}

// Identifiers persists the identifiers assigned to records, keyed by table
// and natural key.
type Identifiers interface {
	Lookup(ctx context.Context, table, key string) (id string, ok bool, err error)
	Store(ctx context.Context, table, key, id string) error
}

// DefaultConcurrency is the default number of concurrent writes.
var DefaultConcurrency = 4

// A Synchronizer seeds companies and jobs.
type Synchronizer struct {
	Store Store

	// Identifiers is consulted first when resolving the identifier of a
	// record. Resolved identifiers are written back. Optional.
	Identifiers Identifiers

	// NewID generates identifiers for new records. If not set, random UUIDs
	// are used.
	NewID func() string

	// Concurrency sets the maximum number of concurrent writes. If not set,
	// DefaultConcurrency is used.
	Concurrency int

	// Logger logs seed progress. If not set, logs are discarded.
	Logger *zap.Logger
}

// A Result contains the records that were written.
type Result struct {
	Companies []Company
	Jobs      []Job

	// New is the number of records that were assigned a new identifier.
	New int
}

// Seed writes the given companies and jobs to the company and job tables.
//
// The identifier of every record is resolved, in order, from:
//
//   1. The identifier map, if set.
//   2. The current contents of the table, by natural key. Companies are
//      matched by name, jobs by title.
//   3. A newly generated identifier.
//
// If any job refers to a company that is not part of the batch, a
// *SeedIntegrityError is returned and nothing is written. Otherwise all
// companies are written before any job is written.
func (s *Synchronizer) Seed(ctx context.Context, companies []CompanyInput, jobs []JobInput, companyTable, jobTable string) (*Result, error) {
	logger := s.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	logger = logger.With(zap.String("companies", companyTable), zap.String("jobs", jobTable))

	if err := validateInputs(companies, jobs); err != nil {
		return nil, errors.Wrap(err, "validate")
	}

	res := &Result{
		Companies: make([]Company, len(companies)),
		Jobs:      make([]Job, len(jobs)),
	}

	companyIDs := &resolver{sync: s, table: companyTable, naturalKey: "name", logger: logger}
	byName := make(map[string]string, len(companies))
	inBatch := make(map[string]bool, len(companies))
	for i, c := range companies {
		id, isNew, err := companyIDs.resolve(ctx, c.Name)
		if err != nil {
			return nil, errors.Wrapf(err, "resolve id for company %q", c.Name)
		}
		if isNew {
			res.New++
		}
		res.Companies[i] = Company{ID: id, Name: c.Name, Traits: c.Traits}
		byName[c.Name] = id
		inBatch[id] = true
	}

	jobIDs := &resolver{sync: s, table: jobTable, naturalKey: "title", logger: logger}
	for i, j := range jobs {
		companyID := j.CompanyID
		if companyID == "" {
			companyID = byName[j.Company]
		}
		if !inBatch[companyID] {
			return nil, &SeedIntegrityError{Job: j.Title, Company: j.Company, CompanyID: j.CompanyID}
		}
		id, isNew, err := jobIDs.resolve(ctx, j.Title)
		if err != nil {
			return nil, errors.Wrapf(err, "resolve id for job %q", j.Title)
		}
		if isNew {
			res.New++
		}
		res.Jobs[i] = Job{
			ID:          id,
			CompanyID:   companyID,
			Title:       j.Title,
			Description: j.Description,
			Traits:      j.Traits,
		}
	}

	logger.Info("Seed", zap.Int("companies", len(companies)), zap.Int("jobs", len(jobs)), zap.Int("new", res.New))

	companyItems := make([]record, len(res.Companies))
	for i, c := range res.Companies {
		companyItems[i] = record{key: c.Name, item: c.item()}
	}
	if err := s.write(ctx, companyTable, companyItems, logger); err != nil {
		return nil, errors.Wrap(err, "write companies")
	}

	jobItems := make([]record, len(res.Jobs))
	for i, j := range res.Jobs {
		jobItems[i] = record{key: j.Title, item: j.item()}
	}
	if err := s.write(ctx, jobTable, jobItems, logger); err != nil {
		return nil, errors.Wrap(err, "write jobs")
	}

	return res, nil
}

type record struct {
	key  string
	item map[string]interface{}
}

// write puts all records concurrently and waits for every write to complete.
func (s *Synchronizer) write(ctx context.Context, table string, records []record, logger *zap.Logger) error {
	c := s.Concurrency
	if c <= 0 {
		c = DefaultConcurrency
	}
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(c)
	for _, rec := range records {
		rec := rec
		g.Go(func() error {
			if err := s.Store.PutItem(gctx, table, rec.item); err != nil {
				return errors.Wrapf(err, "put %q", rec.key)
			}
			if s.Identifiers != nil {
				id, _ := rec.item["id"].(string)
				if err := s.Identifiers.Store(gctx, table, rec.key, id); err != nil {
					return errors.Wrapf(err, "store id for %q", rec.key)
				}
			}
			logger.Debug("Put", zap.String("table", table), zap.String("key", rec.key))
			return nil
		})
	}
	return g.Wait()
}

// resolver resolves identifiers for the records of a single table.
type resolver struct {
	sync       *Synchronizer
	table      string
	naturalKey string
	logger     *zap.Logger

	existing map[string]string // Natural key -> id, from the table contents.
}

func (r *resolver) resolve(ctx context.Context, key string) (id string, isNew bool, err error) {
	if ids := r.sync.Identifiers; ids != nil {
		id, ok, err := ids.Lookup(ctx, r.table, key)
		if err != nil {
			return "", false, errors.Wrap(err, "lookup identifier")
		}
		if ok {
			return id, false, nil
		}
	}

	if r.existing == nil {
		if err := r.scan(ctx); err != nil {
			return "", false, err
		}
	}
	if id, ok := r.existing[key]; ok {
		return id, false, nil
	}

	if r.sync.NewID != nil {
		return r.sync.NewID(), true, nil
	}
	return uuid.New().String(), true, nil
}

// scan indexes the current table contents by natural key. If the table
// contains multiple items with the same natural key, the lexicographically
// smallest id is used.
func (r *resolver) scan(ctx context.Context) error {
	items, err := r.sync.Store.ScanItems(ctx, r.table)
	if err != nil {
		return errors.Wrapf(err, "scan %s", r.table)
	}
	dups := make(map[string][]string)
	r.existing = make(map[string]string, len(items))
	for _, item := range items {
		key, _ := item[r.naturalKey].(string)
		id, _ := item["id"].(string)
		if key == "" || id == "" {
			continue
		}
		dups[key] = append(dups[key], id)
		if prev, ok := r.existing[key]; !ok || id < prev {
			r.existing[key] = id
		}
	}
	for key, ids := range dups {
		if len(ids) > 1 {
			sort.Strings(ids)
			r.logger.Warn(
				"Duplicate records",
				zap.String("table", r.table),
				zap.String(r.naturalKey, key),
				zap.Strings("ids", ids),
				zap.String("using", ids[0]),
			)
		}
	}
	return nil
}
