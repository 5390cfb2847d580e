// Package logs shows the most recent log records in a table.
package logs

import (
	"context"
	"sort"
	"strings"

	"github.com/charmbracelet/bubbles/table"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/sst/mentions/internal/logging"
	"github.com/sst/mentions/internal/pubsub"
	"github.com/sst/mentions/internal/tui/theme"
)

const logLimit = 100

type TableComponent interface {
	tea.Model
	GetSize() (int, int)
	SetSize(width, height int) tea.Cmd
	Len() int
}

type tableCmp struct {
	table   table.Model
	width   int
	height  int
	logs    []logging.Log
	service func() logging.Service
}

type logsLoadedMsg struct {
	logs []logging.Log
}

func (i *tableCmp) Init() tea.Cmd {
	return i.fetchLogs()
}

func (i *tableCmp) fetchLogs() tea.Cmd {
	return func() tea.Msg {
		loggingService := i.service()
		if loggingService == nil {
			return nil
		}
		logs, err := loggingService.ListAll(context.Background(), logLimit)
		if err != nil {
			return nil
		}
		return logsLoadedMsg{logs: logs}
	}
}

func (i *tableCmp) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case logsLoadedMsg:
		i.logs = msg.logs
		i.updateRows()
	case pubsub.Event[logging.Log]:
		if msg.Type == logging.EventLogCreated {
			i.logs = append([]logging.Log{msg.Payload}, i.logs...)
			if len(i.logs) > logLimit {
				i.logs = i.logs[:logLimit]
			}
			i.updateRows()
		}
	}
	return i, nil
}

func (i *tableCmp) View() string {
	t := theme.Current()
	defaultStyles := table.DefaultStyles()
	defaultStyles.Selected = defaultStyles.Selected.Foreground(t.Primary).Bold(false)
	i.table.SetStyles(defaultStyles)
	return i.table.View()
}

func (i *tableCmp) Len() int {
	return len(i.logs)
}

// GetSize returns the size last given to SetSize, header included.
func (i *tableCmp) GetSize() (int, int) {
	return i.width, i.height
}

func (i *tableCmp) SetSize(width int, height int) tea.Cmd {
	i.width, i.height = width, height
	i.table.SetWidth(width)
	i.table.SetHeight(height)
	columns := i.table.Columns()

	timeWidth := 8
	levelWidth := 5
	rest := max(0, width-timeWidth-levelWidth-8) // cell padding

	columns[0].Width = timeWidth
	columns[1].Width = levelWidth
	columns[2].Width = rest * 2 / 3
	columns[3].Width = rest - columns[2].Width

	i.table.SetColumns(columns)
	return nil
}

func (i *tableCmp) updateRows() {
	rows := make([]table.Row, 0, len(i.logs))
	for _, log := range i.logs {
		rows = append(rows, table.Row{
			log.Timestamp.Local().Format("15:04:05"),
			log.Level,
			log.Message,
			attributes(log.Attributes),
		})
	}
	i.table.SetRows(rows)
}

func attributes(attrs map[string]string) string {
	keys := make([]string, 0, len(attrs))
	for k := range attrs {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, k+"="+attrs[k])
	}
	return strings.Join(parts, " ")
}

// NewLogsTable reads from the global logging service.
func NewLogsTable() TableComponent {
	return newTable(logging.GetService)
}

func newTable(service func() logging.Service) *tableCmp {
	columns := []table.Column{
		{Title: "Time", Width: 8},
		{Title: "Level", Width: 5},
		{Title: "Message", Width: 30},
		{Title: "Attributes", Width: 20},
	}
	return &tableCmp{
		table:   table.New(table.WithColumns(columns)),
		logs:    []logging.Log{},
		service: service,
	}
}
