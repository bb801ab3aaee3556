// Package recipeid derives stable recipe identifiers from the resource
// locators handed out by the recipe-search provider.
//
// The provider identifies recipes with URI-like strings such as
//
//	http://www.edamam.com/ontologies/edamam.owl#recipe_b79327d05b8e5b838ad6cfd9576b30b6
//
// Only the trailing hash is stable enough to key storage on, so everything
// that stores or looks up a saved recipe goes through Extract first.
package recipeid

import "strings"

// Marker separates the provider's ontology prefix from the recipe hash.
const Marker = "#recipe_"

// Extract maps a recipe resource locator to its identifier:
//
//  1. if the locator contains Marker, the text after its last occurrence
//  2. otherwise, if it contains an underscore, the text after the first one
//  3. otherwise, the locator unchanged
//
// Extract is total: "" maps to "", and a locator ending in Marker maps to "".
// Callers that need a usable key must reject the empty result themselves.
func Extract(locator string) string {
	if i := strings.LastIndex(locator, Marker); i >= 0 {
		return locator[i+len(Marker):]
	}
	if _, after, found := strings.Cut(locator, "_"); found {
		return after
	}
	return locator
}
