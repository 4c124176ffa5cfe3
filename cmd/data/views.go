package main

import (
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/list"
	"github.com/charmbracelet/bubbles/textinput"

	"github.com/stratsim-lab/stratsim/pkg/marketdata"
)

// listItem implements list.Item for the provider and interval lists.
type listItem struct {
	name        string
	description string
}

func (i listItem) Title() string       { return i.name }
func (i listItem) Description() string { return i.description }
func (i listItem) FilterValue() string { return i.name }

// NewProviderList builds the provider selection list from the provider
// registry metadata.
func NewProviderList() list.Model {
	names := marketdata.GetSupportedProviders()
	items := make([]list.Item, 0, len(names))

	for _, name := range names {
		info, err := marketdata.GetProviderInfo(name)
		if err != nil {
			continue
		}

		items = append(items, listItem{name: info.Name, description: info.Description})
	}

	delegate := list.NewDefaultDelegate()
	delegate.ShowDescription = true

	l := list.New(items, delegate, 0, 0)
	l.Title = "Select Data Provider"
	l.SetShowStatusBar(false)
	l.SetFilteringEnabled(false)
	l.SetShowHelp(false)

	return l
}

// NewIntervalList builds the bar interval selection list.
func NewIntervalList() list.Model {
	timespans := marketdata.Timespans()
	items := make([]list.Item, 0, len(timespans))

	for _, t := range timespans {
		items = append(items, listItem{name: string(t), description: intervalDescription(t)})
	}

	delegate := list.NewDefaultDelegate()
	delegate.ShowDescription = true

	l := list.New(items, delegate, 0, 0)
	l.Title = "Select Interval"
	l.SetShowStatusBar(false)
	l.SetFilteringEnabled(false)
	l.SetShowHelp(false)

	return l
}

func intervalDescription(t marketdata.Timespan) string {
	switch t {
	case marketdata.TimespanOneSecond:
		return "1 second bars"
	case marketdata.TimespanOneMinute:
		return "1 minute bars"
	case marketdata.TimespanThreeMinutes:
		return "3 minute bars"
	case marketdata.TimespanFiveMinutes:
		return "5 minute bars"
	case marketdata.TimespanFifteenMinutes:
		return "15 minute bars"
	case marketdata.TimespanThirtyMinutes:
		return "30 minute bars"
	case marketdata.TimespanOneHour:
		return "1 hour bars"
	case marketdata.TimespanTwoHours:
		return "2 hour bars"
	case marketdata.TimespanFourHours:
		return "4 hour bars"
	case marketdata.TimespanSixHours:
		return "6 hour bars"
	case marketdata.TimespanEightHours:
		return "8 hour bars"
	case marketdata.TimespanTwelveHours:
		return "12 hour bars"
	case marketdata.TimespanOneDay:
		return "1 day bars"
	case marketdata.TimespanThreeDays:
		return "3 day bars"
	case marketdata.TimespanOneWeek:
		return "1 week bars"
	case marketdata.TimespanOneMonth:
		return "1 month bars"
	default:
		return string(t)
	}
}

// NewTickerInput creates the text input for the ticker symbol.
func NewTickerInput() textinput.Model {
	ti := textinput.New()
	ti.Placeholder = "AAPL"
	ti.CharLimit = 20
	ti.Width = 30
	ti.Prompt = "> "

	return ti
}

// NewApiKeyInput creates the text input for the provider API key.
func NewApiKeyInput() textinput.Model {
	ti := textinput.New()
	ti.Placeholder = "your-api-key"
	ti.EchoMode = textinput.EchoPassword
	ti.CharLimit = 128
	ti.Width = 70
	ti.Prompt = "> "

	return ti
}

// NewDateInput creates a text input for a YYYY-MM-DD date.
func NewDateInput(placeholder string) textinput.Model {
	ti := textinput.New()
	ti.Placeholder = placeholder
	ti.CharLimit = 10
	ti.Width = 20
	ti.Prompt = "> "

	return ti
}

// NormalizeTicker trims and upper-cases a ticker entry. Empty input stays
// empty so callers can reject it.
func NormalizeTicker(input string) string {
	return strings.ToUpper(strings.TrimSpace(input))
}

// ParseDate parses a YYYY-MM-DD date entry in UTC.
func ParseDate(input string) (time.Time, error) {
	return time.Parse("2006-01-02", strings.TrimSpace(input))
}
