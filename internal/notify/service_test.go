package notify

import (
	"context"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

type fakeAlerts struct {
	open   map[string]Notification
	nextID int64
}

func newFakeAlerts() *fakeAlerts {
	return &fakeAlerts{open: map[string]Notification{}}
}

func alertKey(skuID int64, kind string) string {
	return kind + ":" + strconv.FormatInt(skuID, 10)
}

func (f *fakeAlerts) Upsert(ctx context.Context, n Notification) (Notification, error) {
	key := alertKey(n.SKUID, n.Kind)
	if existing, ok := f.open[key]; ok {
		existing.Message = n.Message
		f.open[key] = existing
		return existing, nil
	}
	f.nextID++
	n.ID = f.nextID
	n.CreatedAt = time.Now()
	f.open[key] = n
	return n, nil
}

func (f *fakeAlerts) ResolveForSKU(ctx context.Context, skuID int64) (int64, error) {
	var resolved int64
	for key, n := range f.open {
		if n.SKUID == skuID {
			delete(f.open, key)
			resolved++
		}
	}
	return resolved, nil
}

func (f *fakeAlerts) Resolve(ctx context.Context, id int64) error {
	for key, n := range f.open {
		if n.ID == id {
			delete(f.open, key)
			return nil
		}
	}
	return ErrNotificationNotFound
}

func (f *fakeAlerts) List(ctx context.Context, openOnly bool, limit int) ([]Notification, error) {
	var out []Notification
	for _, n := range f.open {
		out = append(out, n)
	}
	return out, nil
}

type fakeDispatcher struct {
	sent []Notification
}

func (f *fakeDispatcher) Dispatch(ctx context.Context, n Notification) error {
	f.sent = append(f.sent, n)
	return nil
}

func TestShortageNotificationMessageAndDispatch(t *testing.T) {
	alerts := newFakeAlerts()
	dispatcher := &fakeDispatcher{}
	svc := NewService(alerts, dispatcher, nil)

	err := svc.CreateMaterialShortageNotifications(context.Background(), []Shortage{
		{SKUID: 1, MaterialID: 3, MaterialName: "Titanium Dioxide", RequiredQty: 120, AvailableQty: 45.5, Unit: "kg"},
	})
	require.NoError(t, err)
	require.Len(t, dispatcher.sent, 1)
	msg := dispatcher.sent[0].Message
	require.Contains(t, msg, "Titanium Dioxide")
	require.Contains(t, msg, "74.50")
	require.Contains(t, msg, "120.00")
	require.Equal(t, KindMaterialShortage, dispatcher.sent[0].Kind)
}

func TestShortageNotificationDedupes(t *testing.T) {
	alerts := newFakeAlerts()
	svc := NewService(alerts, nil, nil)
	ctx := context.Background()

	shortage := []Shortage{{SKUID: 1, MaterialID: 3, MaterialName: "Resin", RequiredQty: 10, AvailableQty: 2, Unit: "kg"}}
	require.NoError(t, svc.CreateMaterialShortageNotifications(ctx, shortage))
	require.NoError(t, svc.CreateMaterialShortageNotifications(ctx, shortage))
	require.Len(t, alerts.open, 1)
}

func TestClearResolvedShortageAlertsRespectsThreshold(t *testing.T) {
	alerts := newFakeAlerts()
	svc := NewService(alerts, nil, nil)
	ctx := context.Background()

	require.NoError(t, svc.CreateMaterialShortageNotifications(ctx, []Shortage{
		{SKUID: 1, MaterialID: 3, MaterialName: "Resin", RequiredQty: 10, AvailableQty: 2, Unit: "kg"},
	}))

	// still at the threshold: keep the alert open
	require.NoError(t, svc.ClearResolvedShortageAlerts(ctx, 1, 5, 5))
	require.Len(t, alerts.open, 1)

	require.NoError(t, svc.ClearResolvedShortageAlerts(ctx, 1, 12, 5))
	require.Empty(t, alerts.open)
}

func TestNotifyLowStockOnlyBelowThreshold(t *testing.T) {
	alerts := newFakeAlerts()
	svc := NewService(alerts, nil, nil)
	ctx := context.Background()

	require.NoError(t, svc.NotifyLowStock(ctx, 1, "Gloss White 25kg", 50, 10, "units"))
	require.Empty(t, alerts.open)

	require.NoError(t, svc.NotifyLowStock(ctx, 1, "Gloss White 25kg", 8, 10, "units"))
	require.Len(t, alerts.open, 1)
}

func TestResolveUnknownNotification(t *testing.T) {
	svc := NewService(newFakeAlerts(), nil, nil)
	require.ErrorIs(t, svc.Resolve(context.Background(), 99), ErrNotificationNotFound)
}
