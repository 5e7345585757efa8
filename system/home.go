package system

import (
	"net/http"
)

type Dashboard struct {
	Title string
	Image string // relative to /static/
}

// HomeContext is everything the landing page shows.
type HomeContext struct {
	Title       string
	KeyFeatures []string
	Features    []string
	Modules     []string
	Dashboards  []Dashboard
}

// HomePage builds a fresh HomeContext on every call.
func HomePage() HomeContext {
	return HomeContext{
		Title: "NL DOJO 2.0 Solution - V Train Platform",
		KeyFeatures: []string{
			"AI Based Analytics and Trend Analysis",
			"Comprehensive Dashboards for HQ, Factories and Departments",
			"Realtime Visibility of Skills, Training Plans and Improvements",
			"IoT enabled connectivity between Man, Machine, Material and Methods",
			"Systematic Training and Realtime improvements",
			"Integration with AI Camera, Biometric System, Machines and Tools",
			"Realtime Alerts & Notifications",
			"Code developed with Latest programming platforms - Python, React & Django",
			"Cloud and Onsite hosting options",
		},
		Features: []string{
			"IoT Enabled",
			"AI Enabled",
			"4M Approach",
			"AR/VR Modules",
			"Interactive Dashboards",
			"Effective Reports",
			"Real time Monitoring",
			"Digital Response Testing",
		},
		Modules: []string{
			"Man Module",
			"Machine Module",
			"Test Module",
			"Training Module",
			"4M Change Module",
			"Red Bin module",
		},
		Dashboards: []Dashboard{
			{Title: "Management Review", Image: "images/review1.jpg"},
			{Title: "Advance Manpower", Image: "images/man1.jpg"},
			{Title: "Skills and Level", Image: "images/skill1.jpg"},
			{Title: "Process Dojo", Image: "images/dash1.jpg"},
			{Title: "Machine", Image: "images/machine1.jpg"},
			{Title: "Training", Image: "images/dash1.jpg"},
		},
	}
}

func (s *System) HomeHandler(w http.ResponseWriter, r *http.Request) {
	page := HomePage()
	s.serveTemplate(w, r, "index.html", page.Title, page)
}
