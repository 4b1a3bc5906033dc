package events

import "testing"

func TestBatchEventValidate(t *testing.T) {
	t.Parallel()

	event := BatchEvent{
		Kind:    KindBatchExecuted,
		BatchID: 7,
		Amount:  "2000",
	}
	if err := event.Validate(); err != nil {
		t.Fatalf("Validate() unexpected error: %v", err)
	}

	event.BatchID = 0
	if err := event.Validate(); err == nil {
		t.Fatal("expected error for zero batch id")
	}

	event.BatchID = 7
	event.Kind = Kind("batch.exploded")
	if err := event.Validate(); err == nil {
		t.Fatal("expected error for invalid kind")
	}
}

func TestKindIsValid(t *testing.T) {
	t.Parallel()

	valid := []Kind{
		KindBatchCreated,
		KindRecipientsPopulated,
		KindRecipientsUpdated,
		KindBatchExecuted,
		KindBatchFinished,
		KindBatchStopped,
		KindBatchSwept,
	}
	for _, kind := range valid {
		if !kind.IsValid() {
			t.Fatalf("kind %q should be valid", kind)
		}
	}

	if Kind("").IsValid() {
		t.Fatal("empty kind should be invalid")
	}
}

func TestRoutingKey(t *testing.T) {
	t.Parallel()

	event := BatchEvent{Kind: KindBatchFinished, BatchID: 3}
	if got := event.RoutingKey(); got != "batch.finished" {
		t.Fatalf("RoutingKey() = %s, want batch.finished", got)
	}
}
