package views

import (
	"fmt"
	"strings"

	"iatui/db"
	"iatui/styles"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
)

type dataMsg struct {
	cities   []db.CityStats
	hasStore bool
}

type eventsMsg struct {
	events []db.FileEvent
}

// Data is the Cities tab: provisioned city schemas with their row
// counts, and the journal's file history for the selected city.
type Data struct {
	db            *db.Client
	width, height int
	cities        []db.CityStats
	events        []db.FileEvent
	selectedRow   int
	hasStore      bool
}

func NewData(dbClient *db.Client) Data {
	return Data{db: dbClient}
}

func (d Data) Init() tea.Cmd {
	return d.Refresh()
}

func (d Data) Refresh() tea.Cmd {
	return func() tea.Msg {
		if d.db.HasStore() {
			cities, _ := d.db.GetCityStats()
			return dataMsg{cities, true}
		}
		// No store connection: the journal's city list stands in,
		// counts stay blank.
		names, _ := d.db.GetJournalCities()
		cities := make([]db.CityStats, len(names))
		for i, name := range names {
			cities[i] = db.CityStats{Schema: name}
		}
		return dataMsg{cities, false}
	}
}

func (d Data) SetSize(w, h int) Data {
	d.width = w
	d.height = h
	return d
}

// SelectedCity returns the schema under the cursor, for the per-city
// command keys in the root model.
func (d Data) SelectedCity() string {
	if len(d.cities) == 0 {
		return ""
	}
	return d.cities[d.selectedRow].Schema
}

func (d Data) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case dataMsg:
		d.cities = msg.cities
		d.hasStore = msg.hasStore
		if d.selectedRow >= len(d.cities) {
			d.selectedRow = 0
		}
		if len(d.cities) > 0 {
			return d, d.loadEvents(d.cities[d.selectedRow].Schema)
		}

	case eventsMsg:
		d.events = msg.events

	case tea.WindowSizeMsg:
		d.width = msg.Width
		d.height = msg.Height - 4

	case tea.KeyMsg:
		switch msg.String() {
		case "up", "k":
			if d.selectedRow > 0 {
				d.selectedRow--
				return d, d.loadEvents(d.cities[d.selectedRow].Schema)
			}
		case "down", "j":
			if len(d.cities) > 0 && d.selectedRow < len(d.cities)-1 {
				d.selectedRow++
				return d, d.loadEvents(d.cities[d.selectedRow].Schema)
			}
		case "pgdown", "ctrl+d":
			if len(d.cities) > 0 {
				d.selectedRow += 10
				if d.selectedRow >= len(d.cities) {
					d.selectedRow = len(d.cities) - 1
				}
				return d, d.loadEvents(d.cities[d.selectedRow].Schema)
			}
		case "pgup", "ctrl+u":
			if len(d.cities) > 0 {
				d.selectedRow -= 10
				if d.selectedRow < 0 {
					d.selectedRow = 0
				}
				return d, d.loadEvents(d.cities[d.selectedRow].Schema)
			}
		case "home", "g":
			if len(d.cities) > 0 {
				d.selectedRow = 0
				return d, d.loadEvents(d.cities[d.selectedRow].Schema)
			}
		case "end", "G":
			if len(d.cities) > 0 {
				d.selectedRow = len(d.cities) - 1
				return d, d.loadEvents(d.cities[d.selectedRow].Schema)
			}
		}
	}
	return d, nil
}

func (d Data) loadEvents(city string) tea.Cmd {
	return func() tea.Msg {
		events, _ := d.db.GetFileEventsForCity(city, 20)
		return eventsMsg{events}
	}
}

func (d Data) getVisibleRows() int {
	rows := 25
	if d.height > 0 {
		rows = (d.height * 60) / 100
		if rows < 10 {
			rows = 10
		}
	}
	return rows
}

func (d Data) View() string {
	position := ""
	if len(d.cities) > 0 {
		position = fmt.Sprintf("  %d/%d", d.selectedRow+1, len(d.cities))
	}
	source := "detail store"
	if !d.hasStore {
		source = "journal only"
	}

	header := styles.Title.Render("Cities") +
		styles.StatValue.Render(position) +
		"  " + styles.Muted.Render(fmt.Sprintf("[%s]  f Fetch  b Hosts", source))

	return lipgloss.JoinVertical(lipgloss.Left,
		header,
		d.renderCitiesTable(),
		"",
		d.renderBottomPanel(),
	)
}

func (d Data) renderCitiesTable() string {
	if len(d.cities) == 0 {
		return styles.Muted.Render("No city schemas yet — run a load first")
	}

	header := fmt.Sprintf("%-24s %10s %10s %10s %8s %8s",
		"Schema", "Listings", "Reviews", "Calendar", "Hoods", "Hosts")
	rows := styles.TableHeader.Render(header) + "\n"

	visibleRows := d.getVisibleRows()
	scrollOffset := 0
	if d.selectedRow >= visibleRows {
		scrollOffset = d.selectedRow - visibleRows + 1
	}
	endRow := scrollOffset + visibleRows
	if endRow > len(d.cities) {
		endRow = len(d.cities)
	}

	count := func(n int) string {
		if !d.hasStore {
			return "—"
		}
		return fmt.Sprintf("%d", n)
	}

	for i := scrollOffset; i < endRow; i++ {
		c := d.cities[i]
		row := fmt.Sprintf("%-24s %10s %10s %10s %8s %8s",
			truncate(c.Schema, 24),
			count(c.Listings),
			count(c.Reviews),
			count(c.Calendar),
			count(c.Neighbourhoods),
			count(c.Hosts),
		)
		if i == d.selectedRow {
			rows += styles.TableSelected.Render(row) + "\n"
		} else {
			rows += row + "\n"
		}
	}

	if len(d.cities) > visibleRows {
		rows += styles.Muted.Render(fmt.Sprintf("  [%d-%d of %d]", scrollOffset+1, endRow, len(d.cities)))
	}

	return rows
}

func (d Data) renderBottomPanel() string {
	events := d.renderEvents()
	summary := d.renderCitySummary()

	eventsBox := styles.CardBorder.Width(d.width*2/3 - 2).Render(
		styles.Title.Render("File History") + "\n" + events,
	)
	summaryBox := styles.CityCardBorder.Width(d.width/3 - 2).Render(
		styles.Title.Render("City") + "\n" + summary,
	)

	return lipgloss.JoinHorizontal(lipgloss.Top, eventsBox, summaryBox)
}

func (d Data) renderEvents() string {
	if len(d.events) == 0 {
		return styles.Muted.Render("No files recorded for this city")
	}

	header := fmt.Sprintf("%-12s %-15s %-22s %-10s %10s %3s",
		"Date", "Path", "File", "Action", "Bytes", "S3")
	rows := styles.TableHeader.Render(header) + "\n"

	maxRows := 10
	if len(d.events) < maxRows {
		maxRows = len(d.events)
	}

	for i := 0; i < maxRows; i++ {
		ev := d.events[i]

		actionStyle := styles.Muted
		switch ev.Action {
		case "fetched", "extracted":
			actionStyle = styles.StatusSuccess
		case "failed":
			actionStyle = styles.StatusError
		case "skipped":
			actionStyle = styles.StatusPending
		}

		mirrored := " "
		if ev.Mirrored {
			mirrored = "✓"
		}

		row := fmt.Sprintf("%-12s %-15s %-22s %s %10d %3s",
			ev.Date,
			truncate(ev.PathKind, 15),
			truncate(ev.File, 22),
			actionStyle.Render(fmt.Sprintf("%-10s", ev.Action)),
			ev.Bytes,
			mirrored,
		)
		rows += row + "\n"
	}
	return rows
}

func (d Data) renderCitySummary() string {
	if len(d.cities) == 0 {
		return styles.Muted.Render("Select a city")
	}

	c := d.cities[d.selectedRow]
	lines := []string{
		styles.StatValue.Render(c.Schema),
		"",
	}

	if d.hasStore {
		lines = append(lines,
			styles.StatLabel.Render("Listings: ")+fmt.Sprintf("%d", c.Listings),
			styles.StatLabel.Render("Reviews: ")+fmt.Sprintf("%d", c.Reviews),
			styles.StatLabel.Render("Hosts: ")+fmt.Sprintf("%d", c.Hosts),
		)
	}

	if len(d.events) > 0 {
		ev := d.events[0]
		lines = append(lines, "",
			styles.StatLabel.Render("Snapshot: ")+ev.Date,
			styles.StatLabel.Render("Last file: ")+relativeTime(ev.CreatedAt),
		)
	}

	return strings.Join(lines, "\n")
}
