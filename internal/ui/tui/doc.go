// Package tui renders deployment results and plans for the terminal with
// lipgloss styles, and shows a live Bubble Tea view of an apply on
// interactive terminals. Colors are dropped automatically when stdout is
// not a terminal.
package tui
