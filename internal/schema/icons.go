package schema

import "strings"

const iconPrefix = "mdi:"

// iconRenames maps icon names retired by the icon set upgrade to their
// replacements. Names are stored without the "mdi:" prefix.
var iconRenames = map[string]string{
	"settings":                     "cog",
	"settings-outline":             "cog-outline",
	"settings-box":                 "cog-box",
	"towing":                       "tow-truck",
	"textbox":                      "form-textbox",
	"textbox-password":             "form-textbox-password",
	"do-not-disturb":               "minus-circle",
	"do-not-disturb-off":           "minus-circle-off",
	"file-document-box":            "text-box",
	"file-document-box-outline":    "text-box-outline",
	"file-document-box-multiple":   "text-box-multiple",
	"tablet-ipad":                  "tablet",
	"cellphone-iphone":             "cellphone",
	"square-inc-cash":              "cash",
	"account-card-details":         "card-account-details",
	"account-card-details-outline": "card-account-details-outline",
	"image-filter":                 "image-multiple-outline",
	"lightbulb-outline-on":         "lightbulb-on-outline",
}

// MigrateIcon returns the current name for an icon, keeping an "mdi:"
// prefix if the input had one. Names not in the rename table, including
// names that are already current, are returned unchanged.
func MigrateIcon(name string) string {
	bare := strings.TrimPrefix(name, iconPrefix)
	next, ok := iconRenames[bare]
	if !ok {
		return name
	}
	if strings.HasPrefix(name, iconPrefix) {
		return iconPrefix + next
	}
	return next
}
