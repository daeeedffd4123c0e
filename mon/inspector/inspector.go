package inspector

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/newhook/eeprom/eeprom"
	"github.com/newhook/eeprom/flash"
)

// Inspector is the UI state for browsing an emulated EEPROM image
type Inspector struct {
	dev       *flash.Array
	ee        *eeprom.EEPROM
	imagePath string

	width  int
	height int

	selectedPage int
	recordScroll int
	activePane   string // "pages", "records"

	writeInput   textinput.Model
	showingWrite bool
	status       string
}

// Define some basic styles
var (
	subtle    = lipgloss.AdaptiveColor{Light: "#D9DCCF", Dark: "#383838"}
	highlight = lipgloss.AdaptiveColor{Light: "#874BFD", Dark: "#7D56F4"}
	special   = lipgloss.AdaptiveColor{Light: "#43BF6D", Dark: "#73F59F"}
	alert     = lipgloss.AdaptiveColor{Light: "#FF6B6B", Dark: "#FF6B6B"}

	titleStyle = lipgloss.NewStyle().
			Foreground(subtle).
			Padding(0, 1)

	pagesStyle = lipgloss.NewStyle().
			BorderStyle(lipgloss.RoundedBorder()).
			BorderForeground(highlight).
			Padding(1).
			Width(34)

	recordsStyle = lipgloss.NewStyle().
			BorderStyle(lipgloss.RoundedBorder()).
			BorderForeground(special).
			Padding(1).
			Width(40)

	varsStyle = lipgloss.NewStyle().
			BorderStyle(lipgloss.RoundedBorder()).
			BorderForeground(highlight).
			Padding(1).
			Width(34)

	selectedLineStyle = lipgloss.NewStyle().
				Foreground(highlight)

	currentLineStyle = lipgloss.NewStyle().
				Background(highlight).
				Foreground(lipgloss.Color("#ffffff"))

	latestStyle = lipgloss.NewStyle().
			Foreground(special).
			Bold(true)

	errorStyle = lipgloss.NewStyle().
			Foreground(alert).
			Bold(true)
)

const recordRows = 16

// New creates an inspector over an initialized store.
func New(dev *flash.Array, ee *eeprom.EEPROM, imagePath string) Inspector {
	ti := textinput.New()
	ti.Placeholder = "addr=value (hex, e.g. 0001=1234)"
	ti.CharLimit = 9
	ti.Width = 30

	return Inspector{
		dev:        dev,
		ee:         ee,
		imagePath:  imagePath,
		activePane: "pages",
		writeInput: ti,
	}
}

func (m Inspector) Init() tea.Cmd {
	return nil
}

func (m Inspector) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height

	case tea.KeyMsg:
		if m.showingWrite {
			switch msg.Type {
			case tea.KeyEnter:
				m.status = m.performWrite(m.writeInput.Value())
				m.writeInput.SetValue("")
				m.showingWrite = false
				return m, nil
			case tea.KeyEsc:
				m.showingWrite = false
				return m, nil
			}
			var cmd tea.Cmd
			m.writeInput, cmd = m.writeInput.Update(msg)
			return m, cmd
		}

		switch msg.String() {
		case "q", "ctrl+c":
			return m, tea.Quit
		case "w":
			m.showingWrite = true
			m.writeInput.Focus()
			return m, textinput.Blink
		case "i":
			if err := m.ee.Init(); err != nil {
				m.status = fmt.Sprintf("init: %v", err)
			} else {
				m.status = "init complete"
			}
		case "s":
			if err := os.WriteFile(m.imagePath, m.dev.Bytes(), 0644); err != nil {
				m.status = fmt.Sprintf("save: %v", err)
			} else {
				m.status = fmt.Sprintf("saved %s", m.imagePath)
			}
		case "tab":
			if m.activePane == "pages" {
				m.activePane = "records"
			} else {
				m.activePane = "pages"
			}
		case "up":
			if m.activePane == "pages" {
				if m.selectedPage > 0 {
					m.selectedPage--
					m.recordScroll = 0
				}
			} else if m.recordScroll > 0 {
				m.recordScroll--
			}
		case "down":
			if m.activePane == "pages" {
				if m.selectedPage < m.ee.NumPages()-1 {
					m.selectedPage++
					m.recordScroll = 0
				}
			} else {
				if max := len(m.ee.Records(m.selectedPage)) - recordRows; m.recordScroll < max {
					m.recordScroll++
				}
			}
		case "pgup":
			if m.activePane == "records" {
				m.recordScroll -= recordRows
				if m.recordScroll < 0 {
					m.recordScroll = 0
				}
			}
		case "pgdown":
			if m.activePane == "records" {
				max := len(m.ee.Records(m.selectedPage)) - recordRows
				if max < 0 {
					max = 0
				}
				m.recordScroll += recordRows
				if m.recordScroll > max {
					m.recordScroll = max
				}
			}
		}
	}
	return m, nil
}

// performWrite parses "addr=value" in hex and stores it.
func (m Inspector) performWrite(input string) string {
	parts := strings.SplitN(strings.TrimSpace(input), "=", 2)
	if len(parts) != 2 {
		return "expected addr=value"
	}
	addr, err := strconv.ParseUint(parts[0], 16, 16)
	if err != nil {
		return fmt.Sprintf("bad address %q", parts[0])
	}
	value, err := strconv.ParseUint(parts[1], 16, 16)
	if err != nil {
		return fmt.Sprintf("bad value %q", parts[1])
	}
	if err := m.ee.Write(uint16(addr), uint16(value)); err != nil {
		return fmt.Sprintf("write: %v", err)
	}
	return fmt.Sprintf("wrote %04X=%04X", addr, value)
}

// formatPages renders the page map with the active page marked
func (m Inspector) formatPages() string {
	var result strings.Builder
	active := m.ee.ActivePage()

	for p := 0; p < m.ee.NumPages(); p++ {
		status := m.ee.StatusOf(p)
		marker := " "
		if p == active {
			marker = "*"
		}
		line := fmt.Sprintf("%s page %d  %-14s %3d recs", marker, p, status, len(m.ee.Records(p)))

		switch {
		case p == m.selectedPage && m.activePane == "pages":
			line = currentLineStyle.Render(line)
		case p == m.selectedPage:
			line = selectedLineStyle.Render(line)
		case status == eeprom.Unknown:
			line = errorStyle.Render(line)
		}
		result.WriteString(line)
		result.WriteString("\n")
	}
	return result.String()
}

// formatRecords renders the selected page's records, newest record per
// key highlighted
func (m Inspector) formatRecords() string {
	recs := m.ee.Records(m.selectedPage)
	if len(recs) == 0 {
		return "(no records)"
	}

	// The last record per key is the live one
	latest := map[uint16]int{}
	for i, r := range recs {
		latest[r.VirtAddr] = i
	}

	var result strings.Builder
	for i := m.recordScroll; i < len(recs) && i < m.recordScroll+recordRows; i++ {
		r := recs[i]
		line := fmt.Sprintf("+%04X  %04X = %04X", r.Offset, r.VirtAddr, r.Value)
		if latest[r.VirtAddr] == i {
			line = latestStyle.Render(line)
		}
		result.WriteString(line)
		result.WriteString("\n")
	}
	if m.recordScroll+recordRows < len(recs) {
		result.WriteString(fmt.Sprintf("… %d more", len(recs)-m.recordScroll-recordRows))
	}
	return result.String()
}

// formatVars renders the resolved value of every configured key
func (m Inspector) formatVars() string {
	var result strings.Builder
	for _, key := range m.ee.Keys() {
		v, err := m.ee.Read(key)
		switch {
		case err == nil:
			result.WriteString(fmt.Sprintf("%04X = %04X\n", key, v))
		case errors.Is(err, eeprom.ErrNotFound):
			result.WriteString(fmt.Sprintf("%04X = ----\n", key))
		default:
			result.WriteString(errorStyle.Render(fmt.Sprintf("%04X : %v", key, err)))
			result.WriteString("\n")
		}
	}
	return result.String()
}

func (m Inspector) View() string {
	pages := pagesStyle.Render(fmt.Sprintf(
		"Pages\n\n%s",
		m.formatPages(),
	))

	vars := varsStyle.Render(fmt.Sprintf(
		"Variables\n\n%s",
		m.formatVars(),
	))

	records := recordsStyle.Render(fmt.Sprintf(
		"Records, page %d (↑↓ to scroll)\n\n%s",
		m.selectedPage,
		m.formatRecords(),
	))

	left := lipgloss.JoinVertical(
		lipgloss.Left,
		pages,
		vars,
	)

	content := lipgloss.JoinHorizontal(
		lipgloss.Top,
		left,
		records,
	)

	help := titleStyle.Render(
		"w: write • i: init • s: save • tab: switch pane • ↑↓: move • q: quit",
	)

	statusLine := ""
	if m.status != "" {
		statusLine = titleStyle.Render(m.status)
	}

	if m.showingWrite {
		dialog := lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			Padding(1).
			Width(40).
			Render(
				"Write variable:\n\n" +
					m.writeInput.View(),
			)

		return lipgloss.JoinVertical(
			lipgloss.Left,
			content,
			help,
			dialog,
		)
	}

	return lipgloss.JoinVertical(
		lipgloss.Left,
		content,
		help,
		statusLine,
	)
}
