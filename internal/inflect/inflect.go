// Package inflect derives human-readable and storage names from type and key identifiers.
package inflect

import "github.com/gobuffalo/flect"

// Titleize renders a type identifier as space separated capitalized words ("BigStuff" -> "Big Stuff").
func Titleize(s string) string {
	return flect.Titleize(s)
}

// Humanize renders a key identifier as a sentence fragment ("createdAt" -> "Created at").
func Humanize(s string) string {
	return flect.Humanize(flect.Underscore(s))
}

// Underscore converts an identifier to snake_case ("BigStuff" -> "big_stuff").
func Underscore(s string) string {
	return flect.Underscore(s)
}

// Camelize converts an identifier to CamelCase ("second_item" -> "SecondItem").
func Camelize(s string) string {
	return flect.Pascalize(s)
}

// Tableize derives the default collection name of a type ("Person" -> "people").
func Tableize(s string) string {
	return flect.Pluralize(flect.Underscore(s))
}

// Classify derives a type name from a plural association name ("statuses" -> "Status").
func Classify(s string) string {
	return flect.Pascalize(flect.Singularize(s))
}

// Pluralize returns the plural of the last word of s.
func Pluralize(s string) string {
	return flect.Pluralize(s)
}

// Singularize returns the singular of the last word of s.
func Singularize(s string) string {
	return flect.Singularize(s)
}
