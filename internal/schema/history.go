package schema

import (
	"github.com/google/uuid"

	"github.com/roach88/homestore/internal/migrate"
	"github.com/roach88/homestore/internal/record"
)

// TargetVersion is the schema version this binary writes.
//
//	 9  primary key removal on notification actions (uuid backfill)
//	10  isServerControlled on actions
//	11  duplicate notification category identifiers removed
//	12  icon set upgrade
//	13  multiple complications per family
//	14  complication privacy
//	15  scenes and zones scoped per server
//	16  zone tracking flag renamed
const TargetVersion = 16

// Options customise History. The zero value uses random UUIDs.
type Options struct {
	// NewID generates identifiers for backfilled uuid fields.
	NewID func() string
}

// History returns the full ordered step registry.
func History(opts Options) *migrate.Registry {
	newID := opts.NewID
	if newID == nil {
		newID = uuid.NewString
	}

	return migrate.MustRegistry(
		migrate.Step{
			Name: "notification action uuid",
			Gate: 9,
			Transform: migrate.BackfillMissing(record.KindNotificationAction, "uuid", func() record.Value {
				return record.String(newID())
			}),
		},
		migrate.Step{
			Name:      "action server control flag",
			Gate:      10,
			Transform: migrate.BackfillDefault(record.KindAction, "isServerControlled", record.Bool(false)),
		},
		migrate.Step{
			Name:      "dedupe notification categories",
			Gate:      11,
			Transform: migrate.DedupeByKey(record.KindNotificationCategory, "Identifier"),
		},
		migrate.Step{
			Name: "icon set upgrade",
			Gate: 12,
			Transform: migrate.Compose(
				migrate.MapString(record.KindAction, "IconName", MigrateIcon),
				migrate.RewriteBlob(record.KindWatchComplication, "complicationData",
					[]string{"icon", "icon"}, migrateIconValue),
			),
		},
		migrate.Step{
			Name:      "complication identifier",
			Gate:      13,
			Transform: migrate.CopyField(record.KindWatchComplication, "rawFamily", "identifier"),
		},
		migrate.Step{
			Name:      "complication privacy",
			Gate:      14,
			Transform: migrate.BackfillDefault(record.KindWatchComplication, "IsPublic", record.Bool(true)),
		},
		migrate.Step{
			Name: "server scoped scene and zone ids",
			Gate: 15,
			Transform: migrate.Compose(
				migrate.RecomputeIdentifier(record.KindScene, "serverIdentifier", ServerScopedID,
					migrate.Reference{Kind: record.KindAction, Field: "Scene"}),
				migrate.RecomputeIdentifier(record.KindZone, "serverIdentifier", ServerScopedID),
			),
		},
		migrate.Step{
			Name:      "zone tracking flag",
			Gate:      16,
			Transform: migrate.RenameField(record.KindZone, "TrackingEnabled", "isTrackingEnabled"),
		},
	)
}

// NewEngine returns a migration engine for the full history at TargetVersion.
func NewEngine(opts Options, engineOpts ...migrate.Option) (*migrate.Engine, error) {
	return migrate.New(History(opts), TargetVersion, engineOpts...)
}

// migrateIconValue rewrites a complication's icon name. Only string icons
// are touched; anything else leaves the blob as it is.
func migrateIconValue(v any) (any, bool) {
	name, ok := v.(string)
	if !ok {
		return nil, false
	}
	next := MigrateIcon(name)
	return next, next != name
}
