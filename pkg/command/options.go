package command

func WithBuildInfo(version, commit, date string) func(app *App) {
	return func(app *App) {
		app.BuildInfo = BuildInfo{
			Version: version,
			Commit:  commit,
			Date:    date,
		}
	}
}

// WithHome sets the directory that stands in for the user's home.
func WithHome(home string) func(app *App) {
	return func(app *App) {
		app.Home = home
	}
}
