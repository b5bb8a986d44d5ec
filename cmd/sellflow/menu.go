package main

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/charmbracelet/bubbles/list"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"sellflow/internal/calibrate"
	"sellflow/internal/coords"
	"sellflow/internal/input"
)

type menuChoice int

const (
	choiceNone menuChoice = iota
	choiceResearch
	choicePriceAdjust
	choiceSetup
	choiceQuit
)

type menuItem struct {
	title  string
	desc   string
	choice menuChoice
}

func (i menuItem) Title() string       { return i.title }
func (i menuItem) Description() string { return i.desc }
func (i menuItem) FilterValue() string { return i.title }

var menuTitleStyle = lipgloss.NewStyle().
	Bold(true).
	Foreground(lipgloss.Color("170")).
	Padding(0, 1)

type menuModel struct {
	list   list.Model
	chosen menuChoice
}

func newMenuModel() menuModel {
	items := []list.Item{
		menuItem{"Research", "Search sold items and record them to the ledger", choiceResearch},
		menuItem{"Price adjustment", "Step down prices on slow-selling listings", choicePriceAdjust},
		menuItem{"Setup", "Run the coordinate calibration tool", choiceSetup},
		menuItem{"Quit", "Exit sellflow", choiceQuit},
	}

	l := list.New(items, list.NewDefaultDelegate(), 48, 16)
	l.Title = "sellflow"
	l.Styles.Title = menuTitleStyle
	l.SetShowStatusBar(false)
	l.SetFilteringEnabled(false)
	return menuModel{list: l}
}

func (m menuModel) Init() tea.Cmd { return nil }

func (m menuModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c", "esc":
			m.chosen = choiceQuit
			return m, tea.Quit
		case "enter":
			if it, ok := m.list.SelectedItem().(menuItem); ok {
				m.chosen = it.choice
				return m, tea.Quit
			}
		}
	case tea.WindowSizeMsg:
		m.list.SetSize(msg.Width, msg.Height)
	}

	var cmd tea.Cmd
	m.list, cmd = m.list.Update(msg)
	return m, cmd
}

func (m menuModel) View() string {
	return m.list.View()
}

// runMenu shows the interactive menu and dispatches the chosen stage.
func runMenu(ctx context.Context) error {
	for {
		p := tea.NewProgram(newMenuModel())
		final, err := p.Run()
		if err != nil {
			return fmt.Errorf("menu: %w", err)
		}
		choice := final.(menuModel).chosen

		switch choice {
		case choiceQuit, choiceNone:
			return nil
		case choiceResearch:
			keyword := prompt("Search keyword: ")
			if keyword == "" {
				continue
			}
			if err := withApp(func(a *app) error {
				items, err := a.researchRunner().Keywords(ctx, []string{keyword})
				if err != nil {
					return err
				}
				fmt.Printf("research complete: %d items recorded\n", len(items))
				return nil
			}); err != nil {
				return err
			}
		case choicePriceAdjust:
			if err := withApp(func(a *app) error {
				adjusted, err := a.priceAdjustRunner().Run(ctx)
				if err != nil {
					return err
				}
				fmt.Printf("price pass complete: %d listings adjusted\n", adjusted)
				return nil
			}); err != nil {
				return err
			}
		case choiceSetup:
			store := coords.NewStore(cfg.Dirs.CoordinateSets)
			runner := calibrate.NewRunner("sellflow-calibrate", store, logger)
			platform := input.PlatformFor(cfg.Engine.Platform)
			set, err := runner.Run(ctx, platform.Name, cfg.Engine.CoordinateProfile)
			if err != nil {
				return err
			}
			fmt.Printf("calibration complete: %d elements\n", set.Len())
		}
	}
}

func withApp(fn func(a *app) error) error {
	a, err := newApp(&cfg, logger)
	if err != nil {
		return err
	}
	defer a.Close()
	return fn(a)
}

func prompt(label string) string {
	fmt.Print(label)
	scanner := bufio.NewScanner(os.Stdin)
	if !scanner.Scan() {
		return ""
	}
	return strings.TrimSpace(scanner.Text())
}
