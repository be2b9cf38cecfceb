package rules_test

import (
	"context"
	"database/sql"
	"errors"
	"os"
	"testing"

	"github.com/google/uuid"
	_ "github.com/jackc/pgx/v5/stdlib"

	"github.com/JaimeStill/manifest/internal/migrations"
	"github.com/JaimeStill/manifest/internal/normalize"
	"github.com/JaimeStill/manifest/internal/rules"
	"github.com/JaimeStill/manifest/pkg/pagination"
)

const envTestDSN = "MANIFEST_TEST_DSN"

// postgresStore migrates the database named by MANIFEST_TEST_DSN and returns a
// seeded Postgres-backed store. Tests skip when the variable is unset.
func postgresStore(t *testing.T) (rules.System, *sql.DB) {
	t.Helper()

	dsn := os.Getenv(envTestDSN)
	if dsn == "" {
		t.Skipf("%s not set", envTestDSN)
	}
	if err := migrations.Up(dsn); err != nil {
		t.Fatalf("migrate: %v", err)
	}

	db, err := sql.Open("pgx", dsn)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	catalog, err := rules.DefaultCatalog()
	if err != nil {
		t.Fatalf("DefaultCatalog: %v", err)
	}

	sys := rules.New(db, discard(), pagination.Config{DefaultPageSize: 25, MaxPageSize: 200})
	if _, err := sys.Seed(context.Background(), catalog); err != nil {
		t.Fatalf("Seed: %v", err)
	}
	return sys, db
}

func insertCompany(t *testing.T, db *sql.DB) uuid.UUID {
	t.Helper()
	id := uuid.New()
	code := "T" + id.String()[:8]
	if _, err := db.Exec(`INSERT INTO companies (id, code, name) VALUES ($1, $2, $3)`, id, code, code); err != nil {
		t.Fatalf("insert company: %v", err)
	}
	return id
}

func TestPostgresSeedIsIdempotent(t *testing.T) {
	sys, _ := postgresStore(t)

	catalog, _ := rules.DefaultCatalog()
	res, err := sys.Seed(context.Background(), catalog)
	if err != nil {
		t.Fatalf("second Seed: %v", err)
	}
	if res.Categories != 0 || res.Rules != 0 {
		t.Errorf("reseed inserted %+v, want nothing", res)
	}
}

func TestPostgresFindLearnedPrefersCompany(t *testing.T) {
	sys, db := postgresStore(t)
	ctx := context.Background()
	company := insertCompany(t, db)
	desc := "LOLO " + uuid.NewString()

	if _, err := sys.Learn(ctx, rules.LearnCommand{Description: desc, Category: "OTHER", Policy: policy}); err != nil {
		t.Fatalf("Learn universal: %v", err)
	}

	m, err := sys.FindLearned(ctx, normalize.Description(desc), &company)
	if err != nil || m.Category != "OTHER" {
		t.Fatalf("company lookup before company mapping = %+v, %v", m, err)
	}

	if _, err := sys.Learn(ctx, rules.LearnCommand{Description: desc, CompanyID: &company, Category: "THC", Policy: policy}); err != nil {
		t.Fatalf("Learn company: %v", err)
	}

	m, err = sys.FindLearned(ctx, normalize.Description(desc), &company)
	if err != nil || m.Category != "THC" {
		t.Errorf("company lookup = %+v, %v, want THC", m, err)
	}

	m, err = sys.FindLearned(ctx, normalize.Description(desc), nil)
	if err != nil || m.Category != "OTHER" {
		t.Errorf("universal lookup = %+v, %v, want OTHER", m, err)
	}

	if _, err := sys.FindLearned(ctx, "UNSEEN "+uuid.NewString(), nil); !errors.Is(err, rules.ErrMappingNotFound) {
		t.Errorf("err = %v, want ErrMappingNotFound", err)
	}
}

func TestPostgresLearnPromotion(t *testing.T) {
	sys, db := postgresStore(t)
	ctx := context.Background()
	company := insertCompany(t, db)

	cmd := rules.LearnCommand{
		Description: "Port Facility Charge " + uuid.NewString(),
		CompanyID:   &company,
		Category:    "OTHER",
		Policy:      policy,
	}

	var last *rules.LearnResult
	for i := 1; i <= policy.Threshold; i++ {
		res, err := sys.Learn(ctx, cmd)
		if err != nil {
			t.Fatalf("Learn %d: %v", i, err)
		}
		last = res
	}

	if !last.Promoted || last.Rule == nil {
		t.Fatalf("not promoted after threshold: %+v", last)
	}
	if last.Rule.Scope != rules.ScopeCompany || last.Rule.Source != rules.SourceLearned {
		t.Errorf("unexpected promoted rule %+v", last.Rule)
	}

	cmd.Category = "THC"
	for i := 1; i <= policy.Threshold; i++ {
		if last, _ = sys.Learn(ctx, cmd); last == nil {
			t.Fatalf("Learn after recategorize %d failed", i)
		}
	}
	if !last.Promoted || last.Rule.Version != 2 || last.Rule.SupersedesID == nil {
		t.Errorf("recategorized promotion = %+v, want version 2 superseding the first rule", last.Rule)
	}

	active, err := sys.ActiveRules(ctx)
	if err != nil {
		t.Fatalf("ActiveRules: %v", err)
	}
	count := 0
	for _, r := range active {
		if r.Pattern == last.Mapping.Description {
			count++
		}
	}
	if count != 1 {
		t.Errorf("active rules for promoted description = %d, want 1", count)
	}
}
