// Copyright 2025 The Rivaas Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package app

import (
	"fmt"
	"io"
	"os"
	"slices"
	"strings"

	"github.com/charmbracelet/colorprofile"
	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"github.com/common-nighthawk/go-figure"
	"golang.org/x/term"

	"rivaas.dev/keel/router"
)

// colorWriter downsamples ANSI colors to what w supports and strips them
// entirely when w is not a terminal.
func colorWriter(w io.Writer) *colorprofile.Writer {
	return colorprofile.NewWriter(w, os.Environ())
}

var methodColors = map[string]string{
	"GET":       "10",
	"POST":      "12",
	"PUT":       "11",
	"PATCH":     "14",
	"DELETE":    "9",
	"HEAD":      "13",
	"OPTIONS":   "245",
	"WEBSOCKET": "13",
	"MOUNT":     "243",
}

// printStartupBanner prints the application name, its address and the
// route table.
func (a *App) printStartupBanner(addr, protocol string) {
	w := colorWriter(a.banner)

	gradient := []string{"10", "11"}
	if a.settings.Debug {
		gradient = []string{"12", "14", "10", "11"}
	}

	var art strings.Builder
	for _, line := range figure.NewFigure(a.settings.AppName, "", false).Slicify() {
		if strings.TrimSpace(line) == "" {
			art.WriteString("\n")
			continue
		}
		for i, char := range line {
			style := lipgloss.NewStyle().Foreground(lipgloss.Color(gradient[i%len(gradient)])).Bold(true)
			art.WriteString(style.Render(string(char)))
		}
		art.WriteString("\n")
	}

	categoryStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("245")).Bold(true)
	labelStyle := lipgloss.NewStyle().
		Foreground(lipgloss.Color("240")).
		Width(14).
		PaddingLeft(2).
		Align(lipgloss.Left)
	valueStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("15")).Bold(true)
	disabledStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("240"))

	displayAddr := addr
	if strings.HasPrefix(addr, ":") {
		displayAddr = "0.0.0.0" + addr
	}
	displayAddr = "http://" + displayAddr

	line := func(label, value string, color string) string {
		return labelStyle.Render(label) + "  " + valueStyle.Foreground(lipgloss.Color(color)).Render(value) + "\n"
	}

	var out strings.Builder
	out.WriteString(categoryStyle.Render("Application") + "\n")
	out.WriteString(line("Title:", a.settings.Title, "15"))
	out.WriteString(line("Version:", a.settings.Version, "14"))
	out.WriteString(line("Address:", displayAddr, "10"))
	out.WriteString(line("Protocol:", protocol, "11"))
	if a.settings.Debug {
		out.WriteString(line("Debug:", "on", "9"))
	}

	out.WriteString("\n" + categoryStyle.Render("API") + "\n")
	if a.settings.EnableOpenAPI {
		out.WriteString(line("OpenAPI:", displayAddr+a.settings.OpenAPIConfig.Path, "13"))
		if docs := a.settings.OpenAPIConfig.DocsPath; docs != "" {
			out.WriteString(line("Docs:", displayAddr+docs, "13"))
		}
	} else {
		out.WriteString(labelStyle.Render("OpenAPI:") + "  " + disabledStyle.Render("disabled") + "\n")
	}
	if a.settings.EnableSyncHandlers {
		out.WriteString(line("Sync pool:", fmt.Sprintf("%d", a.settings.SyncHandlerLimit), "14"))
	}

	_, _ = fmt.Fprint(w, art.String())
	_, _ = fmt.Fprintln(w, out.String())
	a.renderRoutesTable(w, 80)
}

// PrintRoutes writes the route table to w.
//
// Example output:
//
//	╭────────┬─────────────────┬──────────────┬──────────────╮
//	│ Method │ Path            │ Name         │ Handler      │
//	├────────┼─────────────────┼──────────────┼──────────────┤
//	│ GET    │ /items/{id}     │ read_item    │ main.getItem │
//	│ POST   │ /items          │ create_item  │ main.newItem │
//	╰────────┴─────────────────┴──────────────┴──────────────╯
func (a *App) PrintRoutes(w io.Writer) {
	a.renderRoutesTable(colorWriter(w), 120)
}

// routeRows returns one row per method of every route, in match order.
func routeRows(routes []*router.Route) [][]string {
	var rows [][]string
	for _, rt := range routes {
		handler := "-"
		if rt.Model != nil {
			handler = rt.Model.Name
		}
		switch rt.Kind {
		case router.KindMount:
			rows = append(rows, []string{"MOUNT", rt.Path.Pattern, rt.Name, fmt.Sprintf("%T", rt.Mounted)})
		case router.KindWebSocket:
			rows = append(rows, []string{"WEBSOCKET", rt.Path.Pattern, rt.Name, handler})
		default:
			methods := slices.Clone(rt.Methods)
			slices.Sort(methods)
			for _, m := range methods {
				rows = append(rows, []string{m, rt.Path.Pattern, rt.Name, handler})
			}
		}
	}
	return rows
}

func (a *App) renderRoutesTable(w io.Writer, width int) {
	rows := routeRows(a.router.Routes())
	if len(rows) == 0 {
		_, _ = fmt.Fprintln(w, "No routes registered")
		return
	}

	minWidth := 2 + 3 + 8
	for col := range 4 {
		widest := 0
		for _, row := range rows {
			widest = max(widest, len(row[col]))
		}
		minWidth += widest
	}

	tableWidth := max(minWidth, width)
	if f, ok := w.(*os.File); ok {
		if tw, _, err := term.GetSize(int(f.Fd())); err == nil && tw > 0 {
			tableWidth = min(tableWidth, tw)
		}
	}
	tableWidth = max(60, tableWidth)

	t := table.New().
		Border(lipgloss.RoundedBorder()).
		BorderStyle(lipgloss.NewStyle().Foreground(lipgloss.Color("240"))).
		StyleFunc(func(row, col int) lipgloss.Style {
			style := lipgloss.NewStyle().Align(lipgloss.Left).Padding(0, 1)
			switch {
			case row == table.HeaderRow:
				return style.Bold(true).Foreground(lipgloss.Color("230"))
			case col == 0 && row >= 0 && row < len(rows):
				if c, ok := methodColors[rows[row][0]]; ok {
					return style.Foreground(lipgloss.Color(c)).Bold(true)
				}
			}
			return style
		}).
		Headers("Method", "Path", "Name", "Handler").
		Rows(rows...).
		Width(tableWidth)

	_, _ = fmt.Fprintln(w, t.Render())
}
