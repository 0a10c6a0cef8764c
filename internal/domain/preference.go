package domain

// Preference is per-user display settings. Mutated only by its owning user;
// read-only to the fanout engine. Lives independently of any session.
type Preference struct {
	UserID            int64    `db:"user_id"`
	PrimaryLanguage   Language `db:"primary_language"`
	SecondaryLanguage Language `db:"secondary_language"`
	ShowDualSubtitles bool     `db:"show_dual_subtitles"`
	FontScale         string   `db:"font_scale"`   // small|medium|large
	ColorScheme       string   `db:"color_scheme"` // light|dark|sepia
}

func DefaultPreference(userID int64, primary Language) Preference {
	return Preference{
		UserID:          userID,
		PrimaryLanguage: primary,
		FontScale:       "medium",
		ColorScheme:     "light",
	}
}
