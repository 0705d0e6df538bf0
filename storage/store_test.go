package storage

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/nats-io/nats-server/v2/server"
	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"

	"github.com/c360studio/shopfloor/cutlist"
	"github.com/c360studio/shopfloor/events"
)

// capturePublisher records every event published during a test.
type capturePublisher struct {
	mu     sync.Mutex
	events []events.Event
}

func (c *capturePublisher) Publish(e events.Event) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.events = append(c.events, e)
}

func (c *capturePublisher) all() []events.Event {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]events.Event, len(c.events))
	copy(out, c.events)
	return out
}

func (c *capturePublisher) last() (events.Event, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.events) == 0 {
		return events.Event{}, false
	}
	return c.events[len(c.events)-1], true
}

// newTestStore spins up an embedded JetStream-enabled server and returns a
// Store wired to it plus the publisher capturing its notifications.
func newTestStore(t *testing.T) (*Store, *capturePublisher) {
	t.Helper()

	opts := &server.Options{
		Port:      -1,
		JetStream: true,
		StoreDir:  t.TempDir(),
		NoLog:     true,
		NoSigs:    true,
	}
	ns, err := server.NewServer(opts)
	if err != nil {
		t.Fatalf("create embedded server: %v", err)
	}
	go ns.Start()
	if !ns.ReadyForConnections(5 * time.Second) {
		t.Fatal("embedded server failed to start")
	}
	t.Cleanup(ns.Shutdown)

	conn, err := nats.Connect(ns.ClientURL())
	if err != nil {
		t.Fatalf("connect: %v", err)
	}
	t.Cleanup(conn.Close)

	js, err := jetstream.New(conn)
	if err != nil {
		t.Fatalf("jetstream: %v", err)
	}

	pub := &capturePublisher{}
	store, err := NewStore(context.Background(), js, pub, nil)
	if err != nil {
		t.Fatalf("create store: %v", err)
	}
	return store, pub
}

func TestJobLifecycle(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()

	t.Run("create requires name", func(t *testing.T) {
		_, err := store.CreateJob(ctx, "", "ACME Kitchens")
		if !cutlist.IsValidation(err) {
			t.Errorf("expected validation error, got %v", err)
		}
	})

	j, err := store.CreateJob(ctx, "Maple Kitchen", "ACME Kitchens")
	if err != nil {
		t.Fatalf("create job: %v", err)
	}
	if j.Status != cutlist.JobWaiting {
		t.Errorf("new job status = %s, want %s", j.Status, cutlist.JobWaiting)
	}

	t.Run("get round trip", func(t *testing.T) {
		got, err := store.GetJob(ctx, j.ID)
		if err != nil {
			t.Fatalf("get job: %v", err)
		}
		if got.Name != "Maple Kitchen" || got.Customer != "ACME Kitchens" {
			t.Errorf("unexpected job: %+v", got)
		}
	})

	t.Run("get unknown returns not found", func(t *testing.T) {
		_, err := store.GetJob(ctx, "job:nope")
		if !errors.Is(err, ErrNotFound) {
			t.Errorf("expected ErrNotFound, got %v", err)
		}
	})

	t.Run("list includes job", func(t *testing.T) {
		jobs, err := store.ListJobs(ctx)
		if err != nil {
			t.Fatalf("list jobs: %v", err)
		}
		if len(jobs) != 1 || jobs[0].ID != j.ID {
			t.Errorf("unexpected jobs: %+v", jobs)
		}
	})
}

func TestJobTransitions(t *testing.T) {
	store, pub := newTestStore(t)
	ctx := context.Background()

	j, err := store.CreateJob(ctx, "Walnut Vanity", "")
	if err != nil {
		t.Fatalf("create job: %v", err)
	}

	t.Run("start from waiting", func(t *testing.T) {
		updated, err := store.Transition(ctx, j.ID, ActionStart)
		if err != nil {
			t.Fatalf("start: %v", err)
		}
		if updated.Status != cutlist.JobInProgress {
			t.Errorf("status = %s, want %s", updated.Status, cutlist.JobInProgress)
		}
		if updated.TimerStartedAt == nil {
			t.Error("expected running timer")
		}
		last, ok := pub.last()
		if !ok || last.Type != events.TypeJobTimerStarted {
			t.Errorf("expected timer started event, got %+v", last)
		}
	})

	t.Run("pause stops timer", func(t *testing.T) {
		updated, err := store.Transition(ctx, j.ID, ActionPause)
		if err != nil {
			t.Fatalf("pause: %v", err)
		}
		if updated.Status != cutlist.JobPaused {
			t.Errorf("status = %s, want %s", updated.Status, cutlist.JobPaused)
		}
		if updated.TimerStartedAt != nil {
			t.Error("expected stopped timer")
		}
		last, ok := pub.last()
		if !ok || last.Type != events.TypeJobTimerStopped {
			t.Errorf("expected timer stopped event, got %+v", last)
		}
	})

	t.Run("illegal transition is a conflict", func(t *testing.T) {
		_, err := store.Transition(ctx, j.ID, ActionStart)
		if !cutlist.IsConflict(err) {
			t.Errorf("expected conflict error, got %v", err)
		}
	})

	t.Run("illegal transition does not persist", func(t *testing.T) {
		got, err := store.GetJob(ctx, j.ID)
		if err != nil {
			t.Fatalf("get job: %v", err)
		}
		if got.Status != cutlist.JobPaused {
			t.Errorf("status = %s, want %s", got.Status, cutlist.JobPaused)
		}
	})

	t.Run("unknown action is a validation error", func(t *testing.T) {
		_, err := store.Transition(ctx, j.ID, "restart")
		if !cutlist.IsValidation(err) {
			t.Errorf("expected validation error, got %v", err)
		}
	})
}

func TestSessionTimers(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()

	j, err := store.CreateJob(ctx, "Oak Pantry", "")
	if err != nil {
		t.Fatalf("create job: %v", err)
	}

	sessionID, _, err := store.StartSession(ctx, j.ID)
	if err != nil {
		t.Fatalf("start session: %v", err)
	}
	if sessionID == "" {
		t.Fatal("expected session ID")
	}

	t.Run("stop unknown session", func(t *testing.T) {
		_, err := store.StopSession(ctx, j.ID, "bogus")
		if !errors.Is(err, ErrNotFound) {
			t.Errorf("expected ErrNotFound, got %v", err)
		}
	})

	t.Run("stop open session", func(t *testing.T) {
		updated, err := store.StopSession(ctx, j.ID, sessionID)
		if err != nil {
			t.Fatalf("stop session: %v", err)
		}
		if len(updated.OpenSessions) != 0 {
			t.Errorf("expected no open sessions, got %d", len(updated.OpenSessions))
		}
	})
}

func TestCutlistOperations(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()

	j, err := store.CreateJob(ctx, "Garage Cabinets", "")
	if err != nil {
		t.Fatalf("create job: %v", err)
	}

	t.Run("create requires existing job", func(t *testing.T) {
		_, err := store.CreateCutlist(ctx, "job:missing", "Uppers")
		if !errors.Is(err, ErrNotFound) {
			t.Errorf("expected ErrNotFound, got %v", err)
		}
	})

	first, err := store.CreateCutlist(ctx, j.ID, "Uppers")
	if err != nil {
		t.Fatalf("create cutlist: %v", err)
	}
	second, err := store.CreateCutlist(ctx, j.ID, "Lowers")
	if err != nil {
		t.Fatalf("create cutlist: %v", err)
	}

	t.Run("positions assigned in order", func(t *testing.T) {
		if first.Position != 0 || second.Position != 1 {
			t.Errorf("positions = %d, %d; want 0, 1", first.Position, second.Position)
		}
		cutlists, err := store.ListCutlistsByJob(ctx, j.ID)
		if err != nil {
			t.Fatalf("list cutlists: %v", err)
		}
		if len(cutlists) != 2 || cutlists[0].ID != first.ID {
			t.Errorf("unexpected order: %+v", cutlists)
		}
	})

	t.Run("delete cascades to materials", func(t *testing.T) {
		m, err := store.CreateMaterial(ctx, first.ID, "White", 4)
		if err != nil {
			t.Fatalf("create material: %v", err)
		}
		if err := store.DeleteCutlist(ctx, first.ID); err != nil {
			t.Fatalf("delete cutlist: %v", err)
		}
		if _, err := store.GetMaterial(ctx, m.ID); !errors.Is(err, ErrNotFound) {
			t.Errorf("expected material gone, got %v", err)
		}
	})
}

func TestSheetStatusPersistence(t *testing.T) {
	store, pub := newTestStore(t)
	ctx := context.Background()

	j, _ := store.CreateJob(ctx, "Laundry Built-ins", "")
	cl, _ := store.CreateCutlist(ctx, j.ID, "Main")
	m, err := store.CreateMaterial(ctx, cl.ID, "Grey Oak", 5)
	if err != nil {
		t.Fatalf("create material: %v", err)
	}

	t.Run("set and reload", func(t *testing.T) {
		if _, err := store.SetSheetStatus(ctx, m.ID, 2, cutlist.StatusCut); err != nil {
			t.Fatalf("set status: %v", err)
		}
		got, err := store.GetMaterial(ctx, m.ID)
		if err != nil {
			t.Fatalf("get material: %v", err)
		}
		if s := cutlist.StatusAt(got.SheetStatuses, 2); s != cutlist.StatusCut {
			t.Errorf("sheet 2 = %s, want %s", s, cutlist.StatusCut)
		}
	})

	t.Run("event carries sheet coordinates", func(t *testing.T) {
		last, ok := pub.last()
		if !ok {
			t.Fatal("no events published")
		}
		if last.Type != events.TypeSheetStatusUpdated {
			t.Errorf("type = %s, want %s", last.Type, events.TypeSheetStatusUpdated)
		}
		if last.MaterialID != m.ID || last.SheetIndex == nil || *last.SheetIndex != 2 {
			t.Errorf("unexpected event: %+v", last)
		}
	})

	t.Run("out of range rejected", func(t *testing.T) {
		_, err := store.SetSheetStatus(ctx, m.ID, 5, cutlist.StatusCut)
		if !cutlist.IsValidation(err) {
			t.Errorf("expected validation error, got %v", err)
		}
	})

	t.Run("delete requires skip", func(t *testing.T) {
		_, err := store.DeleteSheet(ctx, m.ID, 2)
		if !cutlist.IsValidation(err) {
			t.Errorf("expected validation error, got %v", err)
		}
		if _, err := store.SetSheetStatus(ctx, m.ID, 2, cutlist.StatusSkip); err != nil {
			t.Fatalf("set skip: %v", err)
		}
		updated, err := store.DeleteSheet(ctx, m.ID, 2)
		if err != nil {
			t.Fatalf("delete sheet: %v", err)
		}
		if updated.TotalSheets != 4 {
			t.Errorf("total = %d, want 4", updated.TotalSheets)
		}
	})
}

func TestRecutLifecycle(t *testing.T) {
	store, pub := newTestStore(t)
	ctx := context.Background()

	j, _ := store.CreateJob(ctx, "Mudroom Lockers", "")
	cl, _ := store.CreateCutlist(ctx, j.ID, "Main")
	m, _ := store.CreateMaterial(ctx, cl.ID, "Birch", 10)

	batch, err := store.AddRecut(ctx, m.ID, 3, "chipped edge")
	if err != nil {
		t.Fatalf("add recut: %v", err)
	}

	t.Run("recut added event", func(t *testing.T) {
		last, ok := pub.last()
		if !ok || last.Type != events.TypeRecutAdded || last.RecutID != batch.ID {
			t.Errorf("unexpected event: %+v", last)
		}
	})

	t.Run("status scoped to batch", func(t *testing.T) {
		updated, err := store.SetRecutSheetStatus(ctx, batch.ID, 1, cutlist.StatusCut)
		if err != nil {
			t.Fatalf("set recut status: %v", err)
		}
		if s := cutlist.StatusAt(updated.SheetStatuses, 1); s != cutlist.StatusCut {
			t.Errorf("recut sheet 1 = %s, want %s", s, cutlist.StatusCut)
		}

		parent, err := store.GetMaterial(ctx, m.ID)
		if err != nil {
			t.Fatalf("get material: %v", err)
		}
		if s := cutlist.StatusAt(parent.SheetStatuses, 1); s != cutlist.StatusPending {
			t.Errorf("original sheet 1 = %s, want pending", s)
		}
	})

	t.Run("bounded by quantity", func(t *testing.T) {
		_, err := store.SetRecutSheetStatus(ctx, batch.ID, 3, cutlist.StatusCut)
		if !cutlist.IsValidation(err) {
			t.Errorf("expected validation error, got %v", err)
		}
	})

	t.Run("delete leaves parent intact", func(t *testing.T) {
		if err := store.DeleteRecut(ctx, batch.ID); err != nil {
			t.Fatalf("delete recut: %v", err)
		}
		if _, _, err := store.GetRecut(ctx, batch.ID); !errors.Is(err, ErrNotFound) {
			t.Errorf("expected recut gone, got %v", err)
		}
		parent, err := store.GetMaterial(ctx, m.ID)
		if err != nil {
			t.Fatalf("get material: %v", err)
		}
		if parent.TotalSheets != 10 {
			t.Errorf("total = %d, want 10", parent.TotalSheets)
		}
	})
}

func TestFlatRecords(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()

	j, err := store.CreateJob(ctx, "Office Shelving", "")
	if err != nil {
		t.Fatalf("create job: %v", err)
	}

	t.Run("stock", func(t *testing.T) {
		rec, err := store.AddStock(ctx, j.ID, "18mm MDF", 6)
		if err != nil {
			t.Fatalf("add stock: %v", err)
		}
		updated, err := store.UpdateStockQuantity(ctx, rec.ID, 8)
		if err != nil {
			t.Fatalf("update stock: %v", err)
		}
		if updated.Quantity != 8 {
			t.Errorf("quantity = %d, want 8", updated.Quantity)
		}
		if _, err := store.UpdateStockQuantity(ctx, rec.ID, 0); !cutlist.IsValidation(err) {
			t.Errorf("expected validation error, got %v", err)
		}
	})

	t.Run("hardware", func(t *testing.T) {
		rec, err := store.AddHardware(ctx, j.ID, "Soft-close hinge", 24)
		if err != nil {
			t.Fatalf("add hardware: %v", err)
		}
		list, err := store.ListHardwareByJob(ctx, j.ID)
		if err != nil {
			t.Fatalf("list hardware: %v", err)
		}
		if len(list) != 1 || list[0].ID != rec.ID {
			t.Errorf("unexpected list: %+v", list)
		}
		if err := store.DeleteHardware(ctx, rec.ID); err != nil {
			t.Fatalf("delete hardware: %v", err)
		}
	})

	t.Run("rods", func(t *testing.T) {
		_, err := store.AddRod(ctx, j.ID, "Wardrobe rod", 0, 2)
		if !cutlist.IsValidation(err) {
			t.Errorf("expected validation error for zero length, got %v", err)
		}
		rec, err := store.AddRod(ctx, j.ID, "Wardrobe rod", 900, 2)
		if err != nil {
			t.Fatalf("add rod: %v", err)
		}
		if err := store.DeleteRod(ctx, rec.ID); err != nil {
			t.Fatalf("delete rod: %v", err)
		}
	})

	t.Run("checklist", func(t *testing.T) {
		rec, err := store.AddChecklistItem(ctx, j.ID, "Edge-band fronts")
		if err != nil {
			t.Fatalf("add item: %v", err)
		}
		updated, err := store.SetChecklistItemDone(ctx, rec.ID, true)
		if err != nil {
			t.Fatalf("set done: %v", err)
		}
		if !updated.Done {
			t.Error("expected done")
		}
	})

	t.Run("requires existing job", func(t *testing.T) {
		_, err := store.AddStock(ctx, "job:missing", "Ply", 1)
		if !errors.Is(err, ErrNotFound) {
			t.Errorf("expected ErrNotFound, got %v", err)
		}
	})
}

func TestJobDeleteCascade(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()

	j, _ := store.CreateJob(ctx, "Bathroom Vanities", "")
	cl, _ := store.CreateCutlist(ctx, j.ID, "Main")
	m, _ := store.CreateMaterial(ctx, cl.ID, "White Gloss", 3)
	stock, _ := store.AddStock(ctx, j.ID, "12mm Ply", 2)
	item, _ := store.AddChecklistItem(ctx, j.ID, "Drill shelf pins")

	if err := store.DeleteJob(ctx, j.ID); err != nil {
		t.Fatalf("delete job: %v", err)
	}

	checks := []struct {
		name string
		err  error
	}{
		{"job", func() error { _, err := store.GetJob(ctx, j.ID); return err }()},
		{"cutlist", func() error { _, err := store.GetCutlist(ctx, cl.ID); return err }()},
		{"material", func() error { _, err := store.GetMaterial(ctx, m.ID); return err }()},
	}
	for _, c := range checks {
		if !errors.Is(c.err, ErrNotFound) {
			t.Errorf("%s: expected ErrNotFound, got %v", c.name, c.err)
		}
	}

	if list, _ := store.ListStockByJob(ctx, j.ID); len(list) != 0 {
		t.Errorf("stock %s survived cascade", stock.ID)
	}
	if list, _ := store.ListChecklistByJob(ctx, j.ID); len(list) != 0 {
		t.Errorf("checklist item %s survived cascade", item.ID)
	}
}

func TestJobDetailAggregation(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()

	j, _ := store.CreateJob(ctx, "Showroom Display", "")
	clA, _ := store.CreateCutlist(ctx, j.ID, "Carcasses")
	clB, _ := store.CreateCutlist(ctx, j.ID, "Fronts")

	// 10 sheets, 5 cut.
	big, _ := store.CreateMaterial(ctx, clA.ID, "Birch", 10)
	for i := 0; i < 5; i++ {
		if _, err := store.SetSheetStatus(ctx, big.ID, i, cutlist.StatusCut); err != nil {
			t.Fatalf("set status: %v", err)
		}
	}
	// 2 sheets, none cut.
	if _, err := store.CreateMaterial(ctx, clB.ID, "Walnut", 2); err != nil {
		t.Fatalf("create material: %v", err)
	}

	detail, err := store.GetJobDetail(ctx, j.ID)
	if err != nil {
		t.Fatalf("get detail: %v", err)
	}

	// 5 of 12 sheets cut is 42%, not the 25% a percentage average would give.
	if detail.Progress.Percentage != 42 {
		t.Errorf("job percentage = %d, want 42", detail.Progress.Percentage)
	}
	if detail.Progress.Completed != 5 || detail.Progress.EffectiveTotal != 12 {
		t.Errorf("unexpected tally: %+v", detail.Progress)
	}
	if len(detail.Cutlists) != 2 {
		t.Fatalf("expected 2 cutlists, got %d", len(detail.Cutlists))
	}
	if detail.Cutlists[0].Progress.Percentage != 50 {
		t.Errorf("cutlist A percentage = %d, want 50", detail.Cutlists[0].Progress.Percentage)
	}
}
