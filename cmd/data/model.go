package main

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/list"
	"github.com/charmbracelet/bubbles/progress"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/stratsim-lab/stratsim/internal/logger"
	"github.com/stratsim-lab/stratsim/pkg/marketdata"
)

// Application states, in flow order.
const (
	StateProviderSelect = iota
	StateApiKeyInput
	StateTickerInput
	StateStartDateInput
	StateEndDateInput
	StateIntervalSelect
	StateDownloading
	StateDone
)

// Model is the Bubble Tea model for the interactive download client. The
// flow walks provider, credentials, ticker, date range and interval, then
// runs the download with live progress.
type Model struct {
	state        int
	providerList list.Model
	apiKeyInput  textinput.Model
	tickerInput  textinput.Model
	startInput   textinput.Model
	endInput     textinput.Model
	intervalList list.Model
	progressBar  progress.Model

	dataPath     string
	provider     marketdata.ProviderType
	requiresAuth bool
	apiKey       string
	ticker       string
	startDate    time.Time
	endDate      time.Time
	interval     marketdata.Timespan

	current     float64
	total       float64
	progressMsg string
	outputPath  string
	inputErr    string
	err         error

	width  int
	height int

	downloadCancel context.CancelFunc
	program        *tea.Program
}

// NewModel creates a Model at the provider selection step. Downloads land
// under dataPath.
func NewModel(dataPath string) Model {
	return Model{
		state:        StateProviderSelect,
		providerList: NewProviderList(),
		apiKeyInput:  NewApiKeyInput(),
		tickerInput:  NewTickerInput(),
		startInput:   NewDateInput("2024-01-01"),
		endInput:     NewDateInput("2024-12-31"),
		intervalList: NewIntervalList(),
		progressBar:  progress.New(progress.WithDefaultGradient()),
		dataPath:     dataPath,
	}
}

// SetProgram sets the tea.Program reference for sending messages from the
// download goroutine.
func (m *Model) SetProgram(p *tea.Program) {
	m.program = p
}

// Init implements tea.Model.
func (m Model) Init() tea.Cmd {
	return nil
}

// Update implements tea.Model.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "ctrl+c":
			if m.downloadCancel != nil {
				m.downloadCancel()
			}

			return m, tea.Quit
		case "q":
			// Only quit on 'q' outside text input states.
			if !m.inTextInput() {
				if m.downloadCancel != nil {
					m.downloadCancel()
				}

				return m, tea.Quit
			}
		case "esc":
			return m.handleEsc()
		}

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.providerList.SetSize(msg.Width, msg.Height-4)
		m.intervalList.SetSize(msg.Width, msg.Height-4)
		m.progressBar.Width = min(msg.Width-4, 60)

		return m, nil

	case DownloadProgressMsg:
		m.current = msg.Current
		m.total = msg.Total
		m.progressMsg = msg.Message

		return m, nil

	case DownloadDoneMsg:
		m.outputPath = msg.Path
		m.state = StateDone

		return m, nil

	case DownloadErrorMsg:
		m.err = msg.Err
		m.state = StateDone

		return m, nil
	}

	switch m.state {
	case StateProviderSelect:
		return m.updateProviderSelect(msg)
	case StateApiKeyInput:
		return m.updateApiKeyInput(msg)
	case StateTickerInput:
		return m.updateTickerInput(msg)
	case StateStartDateInput:
		return m.updateStartDateInput(msg)
	case StateEndDateInput:
		return m.updateEndDateInput(msg)
	case StateIntervalSelect:
		return m.updateIntervalSelect(msg)
	}

	return m, nil
}

// inTextInput reports whether the current state reads free-form text.
func (m Model) inTextInput() bool {
	switch m.state {
	case StateApiKeyInput, StateTickerInput, StateStartDateInput, StateEndDateInput:
		return true
	}

	return false
}

func (m Model) handleEsc() (tea.Model, tea.Cmd) {
	m.inputErr = ""

	switch m.state {
	case StateApiKeyInput:
		m.state = StateProviderSelect
	case StateTickerInput:
		if m.requiresAuth {
			m.state = StateApiKeyInput
			m.apiKeyInput.Focus()
		} else {
			m.state = StateProviderSelect
		}
	case StateStartDateInput:
		m.state = StateTickerInput
		m.tickerInput.Focus()

		return m, textinput.Blink
	case StateEndDateInput:
		m.state = StateStartDateInput
		m.startInput.Focus()

		return m, textinput.Blink
	case StateIntervalSelect:
		m.state = StateEndDateInput
		m.endInput.Focus()

		return m, textinput.Blink
	case StateDone:
		// Restart the flow for another download.
		m.err = nil
		m.outputPath = ""
		m.current = 0
		m.total = 0
		m.progressMsg = ""
		m.tickerInput.Reset()
		m.tickerInput.Focus()
		m.state = StateTickerInput

		return m, textinput.Blink
	}

	return m, nil
}

func (m Model) updateProviderSelect(msg tea.Msg) (tea.Model, tea.Cmd) {
	if key, ok := msg.(tea.KeyMsg); ok && key.String() == "enter" {
		if item, ok := m.providerList.SelectedItem().(listItem); ok {
			info, err := marketdata.GetProviderInfo(item.name)
			if err != nil {
				m.err = err

				return m, nil
			}

			m.provider = marketdata.ProviderType(info.Name)
			m.requiresAuth = info.RequiresAuth

			if m.requiresAuth {
				m.state = StateApiKeyInput
				m.apiKeyInput.Focus()
			} else {
				m.state = StateTickerInput
				m.tickerInput.Focus()
			}

			return m, textinput.Blink
		}
	}

	var cmd tea.Cmd
	m.providerList, cmd = m.providerList.Update(msg)

	return m, cmd
}

func (m Model) updateApiKeyInput(msg tea.Msg) (tea.Model, tea.Cmd) {
	if key, ok := msg.(tea.KeyMsg); ok && key.String() == "enter" {
		if strings.TrimSpace(m.apiKeyInput.Value()) != "" {
			m.apiKey = strings.TrimSpace(m.apiKeyInput.Value())
			m.apiKeyInput.Blur()
			m.state = StateTickerInput
			m.tickerInput.Focus()

			return m, textinput.Blink
		}
	}

	var cmd tea.Cmd
	m.apiKeyInput, cmd = m.apiKeyInput.Update(msg)

	return m, cmd
}

func (m Model) updateTickerInput(msg tea.Msg) (tea.Model, tea.Cmd) {
	if key, ok := msg.(tea.KeyMsg); ok && key.String() == "enter" {
		ticker := NormalizeTicker(m.tickerInput.Value())
		if ticker != "" {
			m.ticker = ticker
			m.inputErr = ""
			m.tickerInput.Blur()
			m.state = StateStartDateInput
			m.startInput.Focus()

			return m, textinput.Blink
		}
	}

	var cmd tea.Cmd
	m.tickerInput, cmd = m.tickerInput.Update(msg)

	return m, cmd
}

func (m Model) updateStartDateInput(msg tea.Msg) (tea.Model, tea.Cmd) {
	if key, ok := msg.(tea.KeyMsg); ok && key.String() == "enter" {
		date, err := ParseDate(m.startInput.Value())
		if err != nil {
			m.inputErr = "dates are entered as YYYY-MM-DD"

			return m, nil
		}

		m.startDate = date
		m.inputErr = ""
		m.startInput.Blur()
		m.state = StateEndDateInput
		m.endInput.Focus()

		return m, textinput.Blink
	}

	var cmd tea.Cmd
	m.startInput, cmd = m.startInput.Update(msg)

	return m, cmd
}

func (m Model) updateEndDateInput(msg tea.Msg) (tea.Model, tea.Cmd) {
	if key, ok := msg.(tea.KeyMsg); ok && key.String() == "enter" {
		date, err := ParseDate(m.endInput.Value())
		if err != nil {
			m.inputErr = "dates are entered as YYYY-MM-DD"

			return m, nil
		}

		if !date.After(m.startDate) {
			m.inputErr = "end date must be after the start date"

			return m, nil
		}

		m.endDate = date
		m.inputErr = ""
		m.endInput.Blur()
		m.state = StateIntervalSelect

		return m, nil
	}

	var cmd tea.Cmd
	m.endInput, cmd = m.endInput.Update(msg)

	return m, cmd
}

func (m Model) updateIntervalSelect(msg tea.Msg) (tea.Model, tea.Cmd) {
	if key, ok := msg.(tea.KeyMsg); ok && key.String() == "enter" {
		if item, ok := m.intervalList.SelectedItem().(listItem); ok {
			m.interval = marketdata.Timespan(item.name)
			m.state = StateDownloading

			return m, m.startDownload()
		}
	}

	var cmd tea.Cmd
	m.intervalList, cmd = m.intervalList.Update(msg)

	return m, cmd
}

// startDownload returns a command that launches the download in the
// background; progress and completion arrive as messages.
func (m *Model) startDownload() tea.Cmd {
	return func() tea.Msg {
		if m.program == nil {
			return DownloadErrorMsg{Err: fmt.Errorf("program not set")}
		}

		ctx, cancel := context.WithCancel(context.Background())
		m.downloadCancel = cancel

		go runDownload(ctx, m.program, downloadRequest{
			dataPath:  m.dataPath,
			provider:  m.provider,
			apiKey:    m.apiKey,
			ticker:    m.ticker,
			startDate: m.startDate,
			endDate:   m.endDate,
			interval:  m.interval,
		})

		return nil
	}
}

// downloadRequest carries everything the download goroutine needs, detached
// from the model.
type downloadRequest struct {
	dataPath  string
	provider  marketdata.ProviderType
	apiKey    string
	ticker    string
	startDate time.Time
	endDate   time.Time
	interval  marketdata.Timespan
}

// runDownload executes the download and reports back through the program.
func runDownload(ctx context.Context, p *tea.Program, req downloadRequest) {
	onProgress := func(current float64, total float64, message string) {
		p.Send(DownloadProgressMsg{Current: current, Total: total, Message: message})
	}

	client, err := marketdata.NewClient(marketdata.ClientConfig{
		ProviderType:  req.provider,
		WriterType:    marketdata.WriterDuckDB,
		DataPath:      req.dataPath,
		PolygonApiKey: req.apiKey,
	}, onProgress, logger.NewNopLogger())
	if err != nil {
		p.Send(DownloadErrorMsg{Err: err})

		return
	}

	path, err := client.Download(ctx, marketdata.DownloadParams{
		Ticker:     req.ticker,
		StartDate:  req.startDate,
		EndDate:    req.endDate,
		Multiplier: req.interval.Multiplier(),
		Timespan:   req.interval.Timespan(),
	})
	if err != nil {
		p.Send(DownloadErrorMsg{Err: err})

		return
	}

	p.Send(DownloadDoneMsg{Path: path})
}

// View implements tea.Model.
func (m Model) View() string {
	var s strings.Builder

	switch m.state {
	case StateProviderSelect:
		s.WriteString(TitleStyle.Render("Stratsim - Market Data Download"))
		s.WriteString("\n\n")
		s.WriteString(m.providerList.View())
		s.WriteString("\n")
		s.WriteString(HelpStyle.Render("Press Enter to select, q to quit"))

	case StateApiKeyInput:
		s.WriteString(TitleStyle.Render("API Key"))
		s.WriteString("\n\n")
		s.WriteString(LabelStyle.Render(fmt.Sprintf("Enter your %s API key:", m.provider)))
		s.WriteString("\n\n")
		s.WriteString(m.apiKeyInput.View())
		s.WriteString("\n\n")
		s.WriteString(HelpStyle.Render("Press Enter to confirm, Esc to go back"))

	case StateTickerInput:
		s.WriteString(TitleStyle.Render("Ticker"))
		s.WriteString("\n\n")
		s.WriteString(LabelStyle.Render("Enter the ticker symbol (e.g. AAPL or BTCUSDT):"))
		s.WriteString("\n\n")
		s.WriteString(m.tickerInput.View())
		s.WriteString("\n\n")
		s.WriteString(HelpStyle.Render("Press Enter to confirm, Esc to go back"))

	case StateStartDateInput:
		s.WriteString(TitleStyle.Render("Start Date"))
		s.WriteString("\n\n")
		s.WriteString(LabelStyle.Render("First day of the range (YYYY-MM-DD):"))
		s.WriteString("\n\n")
		s.WriteString(m.startInput.View())
		m.renderInputError(&s)
		s.WriteString("\n\n")
		s.WriteString(HelpStyle.Render("Press Enter to confirm, Esc to go back"))

	case StateEndDateInput:
		s.WriteString(TitleStyle.Render("End Date"))
		s.WriteString("\n\n")
		s.WriteString(LabelStyle.Render("Last day of the range (YYYY-MM-DD):"))
		s.WriteString("\n\n")
		s.WriteString(m.endInput.View())
		m.renderInputError(&s)
		s.WriteString("\n\n")
		s.WriteString(HelpStyle.Render("Press Enter to confirm, Esc to go back"))

	case StateIntervalSelect:
		s.WriteString(TitleStyle.Render("Select Interval"))
		s.WriteString("\n\n")
		s.WriteString(m.intervalList.View())
		s.WriteString("\n")
		s.WriteString(HelpStyle.Render("Press Enter to download, Esc to go back"))

	case StateDownloading:
		s.WriteString(TitleStyle.Render(fmt.Sprintf("Downloading %s (%s)", m.ticker, m.interval)))
		s.WriteString("\n\n")

		if m.total > 0 {
			s.WriteString(m.progressBar.ViewAs(m.current / m.total))
			s.WriteString("\n\n")
		}

		if m.progressMsg != "" {
			s.WriteString(m.progressMsg)
			s.WriteString("\n")
		} else {
			s.WriteString("Starting download...\n")
		}

		s.WriteString("\n")
		s.WriteString(HelpStyle.Render("Ctrl+C to cancel"))

	case StateDone:
		if m.err != nil {
			s.WriteString(TitleStyle.Render("Download Failed"))
			s.WriteString("\n\n")
			s.WriteString(ErrorStyle.Render(fmt.Sprintf("Error: %v", m.err)))
		} else {
			s.WriteString(TitleStyle.Render("Download Complete"))
			s.WriteString("\n\n")
			s.WriteString(SuccessStyle.Render(fmt.Sprintf("Saved to %s", m.outputPath)))
		}

		s.WriteString("\n\n")
		s.WriteString(HelpStyle.Render("Esc: download another | q: quit"))
	}

	return s.String()
}

func (m Model) renderInputError(s *strings.Builder) {
	if m.inputErr == "" {
		return
	}

	s.WriteString("\n\n")
	s.WriteString(ErrorStyle.Render(m.inputErr))
}
