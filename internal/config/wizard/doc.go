// Package wizard provides the interactive descriptor wizard behind
// "eksforge init".
//
// The wizard collects answers with charmbracelet/huh forms and turns them
// into a config.Descriptor written as YAML.
package wizard
