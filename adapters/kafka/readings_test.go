package kafka

import (
	"context"
	"errors"
	"testing"

	"github.com/rs/zerolog"
)

type fakeRecorder struct {
	calls []Reading
	err   error
}

func (f *fakeRecorder) RecordMeterReading(_ context.Context, callerAddr, meterID string, reading int64) error {
	f.calls = append(f.calls, Reading{ProviderAddress: callerAddr, MeterID: meterID, Reading: reading})
	return f.err
}

func TestProcess_RecordsReading(t *testing.T) {
	rec := &fakeRecorder{}
	c := &Consumer{recorder: rec, logger: zerolog.Nop()}

	c.process(context.Background(), []byte(`{"provider_address":"GPROVIDER1","meter_id":"M1","reading":1234}`))

	if len(rec.calls) != 1 {
		t.Fatalf("got %d calls, want 1", len(rec.calls))
	}
	got := rec.calls[0]
	if got.ProviderAddress != "GPROVIDER1" || got.MeterID != "M1" || got.Reading != 1234 {
		t.Errorf("recorded %+v", got)
	}
}

func TestProcess_MalformedMessageIsDropped(t *testing.T) {
	rec := &fakeRecorder{}
	c := &Consumer{recorder: rec, logger: zerolog.Nop()}

	c.process(context.Background(), []byte(`{not json`))

	if len(rec.calls) != 0 {
		t.Fatalf("malformed message reached the recorder: %+v", rec.calls)
	}
}

func TestProcess_RejectionDoesNotPanic(t *testing.T) {
	rec := &fakeRecorder{err: errors.New("unauthorized")}
	c := &Consumer{recorder: rec, logger: zerolog.Nop()}

	c.process(context.Background(), []byte(`{"provider_address":"GX","meter_id":"M1","reading":1}`))

	if len(rec.calls) != 1 {
		t.Fatalf("got %d calls, want 1", len(rec.calls))
	}
}
