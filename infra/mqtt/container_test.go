package mqtt

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"testing"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	tc "github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/kilianp07/smartshift/core/catalog"
	"github.com/kilianp07/smartshift/core/engine"
	"github.com/kilianp07/smartshift/core/model"
)

func startMosquitto(ctx context.Context, t *testing.T) string {
	t.Helper()
	conf := "listener 1883\nallow_anonymous true\n"
	path := filepath.Join(t.TempDir(), "mosquitto.conf")
	require.NoError(t, os.WriteFile(path, []byte(conf), 0o644))

	req := tc.ContainerRequest{
		Image:        "eclipse-mosquitto:2.0",
		ExposedPorts: []string{"1883/tcp"},
		WaitingFor:   wait.ForListeningPort("1883/tcp"),
		Files: []tc.ContainerFile{{
			HostFilePath:      path,
			ContainerFilePath: "/mosquitto/config/mosquitto.conf",
			FileMode:          0o644,
		}},
	}
	cont, err := tc.GenericContainer(ctx, tc.GenericContainerRequest{ContainerRequest: req, Started: true})
	if err != nil {
		t.Skipf("mosquitto container: %v", err)
	}
	t.Cleanup(func() { _ = cont.Terminate(context.Background()) })
	host, err := cont.Host(ctx)
	require.NoError(t, err)
	port, err := cont.MappedPort(ctx, "1883")
	require.NoError(t, err)
	return fmt.Sprintf("tcp://%s:%s", host, port.Port())
}

func TestScanOverBrokerStartsSession(t *testing.T) {
	if testing.Short() {
		t.Skip("container test")
	}
	if _, err := exec.LookPath("docker"); err != nil {
		t.Skip("docker not installed")
	}
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	broker := startMosquitto(ctx, t)

	slots := make([]model.SlotState, model.SlotsPerDay)
	for i := range slots {
		slots[i] = model.SlotFree
	}
	cat, err := catalog.NewMemory([]model.Station{{ID: "e1", Name: "Villa Bogenhausen Charge", PowerKW: 22,
		PriceCents: 30, ParkingFee: 2.24, Status: model.StationAvailable, Availability: slots}})
	require.NoError(t, err)
	now := time.Now().UTC()
	eng := engine.New(engine.Options{Catalog: cat, Location: time.UTC, Now: func() time.Time { return now }})
	require.NoError(t, eng.Load(ctx))
	defer eng.Close()
	res, err := eng.Book(ctx, model.Reservation{StationID: "e1", Date: now.AddDate(0, 0, 1).Format(model.DateLayout),
		StartTime: "10:00", DurationMinutes: 60})
	require.NoError(t, err)

	cfg := Config{Broker: broker, ClientID: "smartshift-it", TopicPrefix: "it"}
	client, err := NewPahoClient(cfg)
	require.NoError(t, err)
	defer client.Disconnect()
	client.OnScan(ScanHandlerFor(ctx, eng, nil))
	done := StartEventPublisher(ctx, client, eng.Events(), nil, nil)

	started := make(chan engine.Event, 1)
	obs := paho.NewClient(paho.NewClientOptions().AddBroker(broker).SetClientID("observer"))
	require.NoError(t, waitToken(obs.Connect()))
	defer obs.Disconnect(100)
	require.NoError(t, waitToken(obs.Subscribe("it/events/session.started", 1, func(_ paho.Client, m paho.Message) {
		var ev engine.Event
		if json.Unmarshal(m.Payload(), &ev) == nil {
			started <- ev
		}
	})))

	// the service subscribes on connect; give it a moment
	time.Sleep(200 * time.Millisecond)
	payload, _ := json.Marshal(ScanRequest{StationID: "e1", ReservationID: res.ID})
	require.NoError(t, waitToken(obs.Publish("it/scan", 1, false, payload)))

	select {
	case ev := <-started:
		require.NotNil(t, ev.Session)
		assert.Equal(t, res.ID, ev.Session.ReservationID)
	case <-time.After(5 * time.Second):
		t.Fatal("no session.started event on the broker")
	}
	_, ok := eng.ActiveSession()
	assert.True(t, ok)

	cancel()
	<-done
}

func waitToken(tok paho.Token) error {
	if !tok.WaitTimeout(5 * time.Second) {
		return fmt.Errorf("mqtt token timeout")
	}
	return tok.Error()
}
