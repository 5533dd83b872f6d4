package ui

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"regexp"
	"sort"
	"strings"
	"sync"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/skalibog/fxma/internal/config"
	"github.com/skalibog/fxma/pkg/logger"
	"github.com/skalibog/fxma/pkg/models"
	"go.uber.org/zap"
)

// Стили UI
var (
	primaryColor   = lipgloss.Color("#0077cc")
	secondaryColor = lipgloss.Color("#333333")
	errorColor     = lipgloss.Color("#cc3300")
	successColor   = lipgloss.Color("#33cc33")
	warningColor   = lipgloss.Color("#cccc00")

	appStyle = lipgloss.NewStyle().
			Padding(1, 2).
			Border(lipgloss.RoundedBorder()).
			BorderForeground(primaryColor)
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#ffffff")).
			Background(primaryColor).
			Padding(0, 1).
			Align(lipgloss.Center)
	sectionHeaderStyle = lipgloss.NewStyle().
				Bold(true).
				Foreground(lipgloss.Color("#ffffff")).
				Background(secondaryColor).
				Padding(0, 1)
	sectionStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(secondaryColor).
			Padding(0, 1)
	footerStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#999999")).
			Padding(0, 1)
)

// TermUI представляет терминальный интерфейс
type TermUI struct {
	recs          map[string]*models.Recommendation
	recsMutex     sync.RWMutex
	stats         models.SignalStats
	logs          []string
	logsMutex     sync.RWMutex
	config        config.UIConfig
	program       *tea.Program
	selectedIndex int
	width         int
	height        int
	logFile       string
}

// Сообщения для обновления UI
type refreshMsg struct{}

// bubbleModel - модель для bubbletea
type bubbleModel struct {
	ui *TermUI
}

// NewTermUI создает новый терминальный интерфейс
func NewTermUI(cfg config.UIConfig) *TermUI {
	ui := &TermUI{
		recs:    make(map[string]*models.Recommendation),
		logs:    []string{"FXMA запущен. Ожидание данных..."},
		config:  cfg,
		width:   120,
		height:  40,
		logFile: logger.JSONLogPath(),
	}

	if cfg.ShowLogs {
		go func() {
			ticker := time.NewTicker(time.Second)
			defer ticker.Stop()
			for range ticker.C {
				if err := ui.loadLogsFromFile(); err != nil {
					logger.Warn("Ошибка загрузки логов", zap.Error(err))
				}
			}
		}()
	}

	return ui
}

// Start запускает UI и блокируется до выхода
func (ui *TermUI) Start() {
	model := bubbleModel{ui: ui}
	ui.program = tea.NewProgram(model, tea.WithAltScreen())
	if _, err := ui.program.Run(); err != nil {
		fmt.Printf("Ошибка запуска UI: %v\n", err)
	}
}

// UpdateRecommendations обновляет отображаемые рекомендации
func (ui *TermUI) UpdateRecommendations(recs map[string]*models.Recommendation) {
	ui.recsMutex.Lock()
	ui.recs = recs
	ui.recsMutex.Unlock()

	if ui.program != nil {
		ui.program.Send(refreshMsg{})
	}
}

// UpdateStats обновляет статистику за 24 часа
func (ui *TermUI) UpdateStats(stats models.SignalStats) {
	ui.recsMutex.Lock()
	ui.stats = stats
	ui.recsMutex.Unlock()

	if ui.program != nil {
		ui.program.Send(refreshMsg{})
	}
}

// loadLogsFromFile подтягивает хвост JSON-лога zap
func (ui *TermUI) loadLogsFromFile() error {
	file, err := os.Open(ui.logFile)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}
	defer file.Close()

	scanner := bufio.NewScanner(file)
	var logs []string

	ansiRegex := regexp.MustCompile(`\x1b\[[0-9;]*m`)

	for scanner.Scan() {
		line := scanner.Text()

		var zapLog map[string]interface{}
		if err := json.Unmarshal([]byte(line), &zapLog); err == nil {
			level, _ := zapLog["level"].(string)
			ts, _ := zapLog["ts"].(string)
			msg, _ := zapLog["msg"].(string)

			level = ansiRegex.ReplaceAllString(level, "")

			timestamp := ""
			if t, err := time.Parse("02.01.2006 - 15:04:05.999999999Z07:00", ts); err == nil {
				timestamp = t.Format("15:04:05")
			}

			formattedMsg := fmt.Sprintf("[%s] [%s] %s", timestamp, level, msg)
			for k, v := range zapLog {
				if k != "level" && k != "ts" && k != "msg" && k != "caller" {
					formattedMsg += fmt.Sprintf(" (%s: %v)", k, v)
				}
			}
			logs = append(logs, formattedMsg)
		} else {
			logs = append(logs, line)
		}

		if len(logs) > 50 {
			logs = logs[1:]
		}
	}

	if err := scanner.Err(); err != nil {
		return err
	}

	ui.logsMutex.Lock()
	defer ui.logsMutex.Unlock()
	if len(logs) > 0 {
		ui.logs = logs
	}

	return nil
}

// Методы для bubbletea
func (m bubbleModel) Init() tea.Cmd {
	return nil
}

func (m bubbleModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c":
			return m, tea.Quit
		case "up":
			if m.ui.selectedIndex > 0 {
				m.ui.selectedIndex--
			}
		case "down":
			pairs := sortedPairs(m.ui.recs)
			if m.ui.selectedIndex < len(pairs)-1 {
				m.ui.selectedIndex++
			}
		}

	case tea.WindowSizeMsg:
		m.ui.width = msg.Width
		m.ui.height = msg.Height

	case refreshMsg:
		// Просто обновляем UI
	}

	return m, nil
}

func (m bubbleModel) View() string {
	m.ui.recsMutex.RLock()
	m.ui.logsMutex.RLock()
	defer m.ui.recsMutex.RUnlock()
	defer m.ui.logsMutex.RUnlock()

	title := titleStyle.Render("FXMA - Forex Market Analyzer")
	recs := renderRecsSection(m.ui.recs, m.ui.selectedIndex)
	stats := renderStatsSection(m.ui.stats)
	footer := footerStyle.Render("Клавиши: ↑/↓ - навигация, Q - выход")

	parts := []string{title, "\n", recs, "\n", stats}
	if m.ui.config.ShowLogs {
		parts = append(parts, "\n", renderLogsSection(m.ui.logs))
	}
	parts = append(parts, "\n", footer)

	return appStyle.Render(lipgloss.JoinVertical(lipgloss.Left, parts...))
}

// renderRecsSection рисует таблицу рекомендаций по парам
func renderRecsSection(recs map[string]*models.Recommendation, selectedIndex int) string {
	header := sectionHeaderStyle.Render("СИГНАЛЫ")
	content := strings.Builder{}

	pairs := sortedPairs(recs)
	if len(pairs) == 0 {
		content.WriteString("  Ожидание данных...\n")
	} else {
		for i, pair := range pairs {
			rec := recs[pair]
			line := "  " + pair + ": " + formatRecommendation(rec)

			if i == selectedIndex {
				line = "> " + line[2:]
				line = lipgloss.NewStyle().Background(lipgloss.Color("#222222")).Render(line)
			}
			content.WriteString(line + "\n")
		}
	}

	return sectionStyle.Render(lipgloss.JoinVertical(lipgloss.Left, header, content.String()))
}

func renderStatsSection(stats models.SignalStats) string {
	header := sectionHeaderStyle.Render("СТАТИСТИКА 24Ч")
	content := fmt.Sprintf("  Всего: %d  Плюс: %d  Минус: %d  Проходимость: %.1f%%\n",
		stats.Total, stats.Wins, stats.Losses, stats.WinRate)
	return sectionStyle.Render(lipgloss.JoinVertical(lipgloss.Left, header, content))
}

func renderLogsSection(logs []string) string {
	header := sectionHeaderStyle.Render("ЛОГИ")
	content := strings.Builder{}

	maxLogsToShow := 10
	start := 0
	if len(logs) > maxLogsToShow {
		start = len(logs) - maxLogsToShow
	}

	for i := start; i < len(logs); i++ {
		log := logs[i]
		if strings.Contains(log, "[ERROR]") {
			log = lipgloss.NewStyle().Foreground(errorColor).Render(log)
		} else if strings.Contains(log, "[INFO]") {
			log = lipgloss.NewStyle().Foreground(successColor).Render(log)
		} else if strings.Contains(log, "[WARN]") {
			log = lipgloss.NewStyle().Foreground(warningColor).Render(log)
		} else if strings.Contains(log, "[DEBUG]") {
			log = lipgloss.NewStyle().Foreground(lipgloss.Color("#9999ff")).Render(log)
		}
		content.WriteString("  " + log + "\n")
	}

	return sectionStyle.Render(lipgloss.JoinVertical(lipgloss.Left, header, content.String()))
}

// formatRecommendation — строка рекомендации с цветом направления
func formatRecommendation(rec *models.Recommendation) string {
	if rec == nil {
		return "—"
	}

	if rec.Reason != "" {
		return lipgloss.NewStyle().Foreground(warningColor).Render(rec.Reason)
	}

	var style lipgloss.Style
	switch rec.Direction {
	case models.DirBuy:
		style = lipgloss.NewStyle().Foreground(successColor).Bold(true)
	case models.DirSell:
		style = lipgloss.NewStyle().Foreground(errorColor).Bold(true)
	default:
		style = lipgloss.NewStyle().Foreground(warningColor)
	}

	text := fmt.Sprintf("%s %.1f%%", rec.Direction, rec.Probability)
	if rec.ExpiryMinutes > 0 {
		text += fmt.Sprintf(" эксп. %d мин", rec.ExpiryMinutes)
	}
	if rec.EntryPrice != nil {
		text += fmt.Sprintf(" вход %.5f", *rec.EntryPrice)
	}
	return style.Render(text)
}

func sortedPairs(recs map[string]*models.Recommendation) []string {
	pairs := make([]string, 0, len(recs))
	for pair := range recs {
		pairs = append(pairs, pair)
	}
	sort.Strings(pairs)
	return pairs
}
