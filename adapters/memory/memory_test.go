package memory_test

import (
	"context"
	"errors"
	"testing"

	"github.com/artpar/utilibill/adapters/memory"
	"github.com/artpar/utilibill/domain/billing"
	"github.com/artpar/utilibill/domain/oracle"
	"github.com/artpar/utilibill/domain/provider"
	"github.com/artpar/utilibill/domain/tariff"
	"github.com/artpar/utilibill/domain/utility"
	"github.com/artpar/utilibill/ports"
)

func TestProviderStore_CRUD(t *testing.T) {
	ctx := context.Background()
	s := memory.NewProviderStore()

	if _, err := s.Get(ctx, "P1"); !errors.Is(err, ports.ErrNotFound) {
		t.Fatalf("get missing: err = %v, want ErrNotFound", err)
	}

	p := provider.Provider{ID: "P1", Name: "Lagos Electric", Type: utility.Electricity, Region: "lagos", Active: true}
	if err := s.Create(ctx, p); err != nil {
		t.Fatalf("create: %v", err)
	}
	if err := s.Create(ctx, p); !errors.Is(err, ports.ErrExists) {
		t.Fatalf("duplicate create: err = %v, want ErrExists", err)
	}

	p.Active = false
	if err := s.Update(ctx, p); err != nil {
		t.Fatalf("update: %v", err)
	}
	got, err := s.Get(ctx, "P1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Active {
		t.Error("update not visible")
	}

	if err := s.Update(ctx, provider.Provider{ID: "P2"}); !errors.Is(err, ports.ErrNotFound) {
		t.Fatalf("update missing: err = %v, want ErrNotFound", err)
	}

	all, err := s.List(ctx)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(all) != 1 {
		t.Errorf("list returned %d providers, want 1", len(all))
	}
}

func TestTariffStore_VersionsAppendOnly(t *testing.T) {
	ctx := context.Background()
	s := memory.NewTariffStore()

	if err := s.Create(ctx, tariff.Tariff{ID: "P1_lagos", Version: 1}); err != nil {
		t.Fatalf("create: %v", err)
	}
	for v := uint32(2); v <= 4; v++ {
		if err := s.AppendVersion(ctx, tariff.Version{TariffID: "P1_lagos", Version: v}); err != nil {
			t.Fatalf("append version %d: %v", v, err)
		}
	}

	vs, err := s.Versions(ctx, "P1_lagos")
	if err != nil {
		t.Fatalf("versions: %v", err)
	}
	if len(vs) != 3 {
		t.Fatalf("got %d versions, want 3", len(vs))
	}
	for i, v := range vs {
		if v.Version != uint32(i+2) {
			t.Errorf("versions[%d] = %d, want %d (oldest first)", i, v.Version, i+2)
		}
	}
}

func TestFeeStore_ListFor(t *testing.T) {
	ctx := context.Background()
	s := memory.NewFeeStore()

	fees := []tariff.Fee{
		{ID: "F1", ProviderID: "P1", Type: utility.Electricity},
		{ID: "F2", ProviderID: "P1", Type: utility.Water},
		{ID: "F3", ProviderID: "P2", Type: utility.Electricity},
	}
	for _, f := range fees {
		if err := s.Create(ctx, f); err != nil {
			t.Fatalf("create %s: %v", f.ID, err)
		}
	}

	got, err := s.ListFor(ctx, "P1", utility.Electricity)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(got) != 1 || got[0].ID != "F1" {
		t.Errorf("got %v, want just F1", got)
	}
}

func TestFeedStore_CRUD(t *testing.T) {
	ctx := context.Background()
	s := memory.NewFeedStore()

	f := oracle.PriceFeed{ID: oracle.FeedID("NGN", "USD"), Base: "NGN", Quote: "USD", Price: 62, Decimals: 5}
	if err := s.Create(ctx, f); err != nil {
		t.Fatalf("create: %v", err)
	}
	if err := s.Create(ctx, f); !errors.Is(err, ports.ErrExists) {
		t.Fatalf("duplicate create: err = %v, want ErrExists", err)
	}

	f.Price = 63
	if err := s.Update(ctx, f); err != nil {
		t.Fatalf("update: %v", err)
	}
	got, err := s.Get(ctx, "NGN_USD")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Price != 63 {
		t.Errorf("price = %d, want 63", got.Price)
	}

	all, err := s.List(ctx)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(all) != 1 {
		t.Errorf("list returned %d feeds, want 1", len(all))
	}
}

func TestBillingStore_KeyAndTotal(t *testing.T) {
	ctx := context.Background()
	s := memory.NewBillingStore()

	recs := []billing.Record{
		{MeterID: "M1", Timestamp: 100, FinalAmount: 40},
		{MeterID: "M1", Timestamp: 200, FinalAmount: 60},
		{MeterID: "M2", Timestamp: 100, FinalAmount: 5},
	}
	for _, rec := range recs {
		if err := s.Create(ctx, rec); err != nil {
			t.Fatalf("create %s/%d: %v", rec.MeterID, rec.Timestamp, err)
		}
	}
	if err := s.Create(ctx, recs[0]); !errors.Is(err, ports.ErrExists) {
		t.Fatalf("duplicate create: err = %v, want ErrExists", err)
	}

	got, err := s.Get(ctx, "M1", 200)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.FinalAmount != 60 {
		t.Errorf("final = %d, want 60", got.FinalAmount)
	}
	if _, err := s.Get(ctx, "M1", 999); !errors.Is(err, ports.ErrNotFound) {
		t.Fatalf("get missing: err = %v, want ErrNotFound", err)
	}

	total, err := s.TotalPaid(ctx, "M1")
	if err != nil {
		t.Fatalf("total: %v", err)
	}
	if total != 100 {
		t.Errorf("total = %d, want 100", total)
	}
}
