// Command data is an interactive terminal client for downloading
// historical market data into the local data directory.
package main

import (
	"log"
	"os"

	tea "github.com/charmbracelet/bubbletea"
)

func main() {
	dataPath := "data"
	if len(os.Args) > 1 {
		dataPath = os.Args[1]
	}

	model := NewModel(dataPath)

	p := tea.NewProgram(&model, tea.WithAltScreen())
	model.SetProgram(p)

	if _, err := p.Run(); err != nil {
		log.Fatal(err)
	}
}
