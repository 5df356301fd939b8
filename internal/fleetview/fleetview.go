// Package fleetview is a read-only terminal dashboard over the live
// fleet: it subscribes to the broker's REGISTRO and ACTUALIZACION
// topics and renders a table of taxi positions, occupancy, and service
// counts. It never publishes anything and never answers health
// probes, matching §4.6's "strictly read-only" rule.
package fleetview

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"sort"
	"time"

	"github.com/charmbracelet/bubbles/table"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"taxidispatch/internal/broker"
	"taxidispatch/internal/timeutil"
	"taxidispatch/internal/wire"
)

type taxiRow struct {
	id           int
	position     [2]int
	busy         bool
	servicesDone int
	updatedAt    time.Time
}

type rowsMsg []taxiRow

type errMsg struct{ err error }

// Model is the bubbletea model driving the dashboard.
type Model struct {
	table  table.Model
	rows   chan []taxiRow
	errs   chan error
	cancel context.CancelFunc
	logger *log.Logger
	err    error
}

var headerStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("212"))
var busyStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("203"))
var idleStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("42"))

// New builds a dashboard that subscribes to brokerBackendAddr.
func New(brokerBackendAddr string, logger *log.Logger) *Model {
	if logger == nil {
		logger = log.Default()
	}
	columns := []table.Column{
		{Title: "Taxi", Width: 6},
		{Title: "Position", Width: 12},
		{Title: "Status", Width: 10},
		{Title: "Services", Width: 10},
		{Title: "Last update", Width: 12},
	}
	t := table.New(
		table.WithColumns(columns),
		table.WithFocused(false),
		table.WithHeight(20),
	)
	s := table.DefaultStyles()
	s.Header = s.Header.BorderStyle(lipgloss.NormalBorder()).BorderBottom(true).Bold(true)
	t.SetStyles(s)

	ctx, cancel := context.WithCancel(context.Background())
	m := &Model{
		table:  t,
		rows:   make(chan []taxiRow, 1),
		errs:   make(chan error, 1),
		cancel: cancel,
		logger: logger,
	}
	go m.ingest(ctx, brokerBackendAddr)
	return m
}

// Run starts the bubbletea program and blocks until the user quits.
func Run(brokerBackendAddr string, logger *log.Logger) error {
	m := New(brokerBackendAddr, logger)
	defer m.cancel()
	p := tea.NewProgram(m, tea.WithAltScreen())
	_, err := p.Run()
	return err
}

func (m *Model) Init() tea.Cmd {
	return m.waitForRows()
}

func (m *Model) waitForRows() tea.Cmd {
	return func() tea.Msg {
		select {
		case rows := <-m.rows:
			return rowsMsg(rows)
		case err := <-m.errs:
			return errMsg{err}
		}
	}
}

func (m *Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c", "esc":
			m.cancel()
			return m, tea.Quit
		}
	case rowsMsg:
		m.table.SetRows(renderRows(msg))
		return m, m.waitForRows()
	case errMsg:
		m.err = msg.err
		return m, tea.Quit
	}
	var cmd tea.Cmd
	m.table, cmd = m.table.Update(msg)
	return m, cmd
}

func (m *Model) View() string {
	if m.err != nil {
		return fmt.Sprintf("fleet view stopped: %v\n", m.err)
	}
	return headerStyle.Render("taxidispatch fleet view") + "\n\n" + m.table.View() + "\n\n(q to quit)\n"
}

func renderRows(rows []taxiRow) []table.Row {
	sort.Slice(rows, func(i, j int) bool { return rows[i].id < rows[j].id })
	now := time.Now()
	out := make([]table.Row, 0, len(rows))
	for _, r := range rows {
		status := idleStyle.Render("idle")
		if r.busy {
			status = busyStyle.Render("busy")
		}
		out = append(out, table.Row{
			fmt.Sprintf("%d", r.id),
			fmt.Sprintf("(%d,%d)", r.position[0], r.position[1]),
			status,
			fmt.Sprintf("%d", r.servicesDone),
			timeutil.FormatRelativeTime(r.updatedAt, now),
		})
	}
	return out
}

// ingest subscribes to the broker backend's REGISTRO/ACTUALIZACION
// topics and maintains a local fleet snapshot, pushing an updated row
// set to the model whenever it changes. It never writes to the
// broker's frontend and never binds a listener of its own.
func (m *Model) ingest(ctx context.Context, brokerBackendAddr string) {
	fleetState := map[int]taxiRow{}

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}
		if err := m.ingestOnce(ctx, brokerBackendAddr, fleetState); err != nil {
			select {
			case m.errs <- err:
			default:
			}
			return
		}
	}
}

func (m *Model) ingestOnce(ctx context.Context, addr string, state map[int]taxiRow) error {
	conn, err := wire.Dial("tcp", addr, 5*time.Second)
	if err != nil {
		return fmt.Errorf("connecting to broker backend: %w", err)
	}
	defer conn.Close()

	sub := struct {
		Prefixes []string `json:"prefixes"`
	}{Prefixes: []string{broker.TopicRegistro, broker.TopicActualizacion}}
	data, _ := json.Marshal(sub)
	if err := conn.WriteFrame(wire.Frame{Payload: data}, 5*time.Second); err != nil {
		return fmt.Errorf("subscribing: %w", err)
	}

	go func() {
		<-ctx.Done()
		conn.Close()
	}()

	for {
		frame, err := conn.ReadFrame(0)
		if err != nil {
			return err
		}
		m.applyFrame(frame, state)
	}
}

func (m *Model) applyFrame(frame wire.Frame, state map[int]taxiRow) {
	switch frame.Topic {
	case broker.TopicRegistro:
		var reg wire.Register
		if err := json.Unmarshal(frame.Payload, &reg); err != nil {
			m.logger.Printf("fleetview: malformed registro, dropped: %v", err)
			return
		}
		state[reg.ID] = taxiRow{id: reg.ID, position: reg.Posicion, updatedAt: time.Now()}
	case broker.TopicActualizacion:
		var upd wire.Update
		if err := json.Unmarshal(frame.Payload, &upd); err != nil {
			m.logger.Printf("fleetview: malformed actualizacion, dropped: %v", err)
			return
		}
		row, known := state[upd.ID]
		if !known {
			row = taxiRow{id: upd.ID}
		}
		row.position = upd.Posicion
		row.busy = upd.Ocupado
		row.servicesDone = upd.Servicios
		row.updatedAt = time.Now()
		state[upd.ID] = row
	default:
		return
	}

	snapshot := make([]taxiRow, 0, len(state))
	for _, r := range state {
		snapshot = append(snapshot, r)
	}
	select {
	case m.rows <- snapshot:
	default:
		select {
		case <-m.rows:
		default:
		}
		m.rows <- snapshot
	}
}
