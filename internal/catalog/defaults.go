package catalog

// DefaultTables returns the standard school point economy.
func DefaultTables() Tables {
	return Tables{
		Actions: map[string]Action{
			"daily_login":       {Points: 10, Description: "Daily login completed"},
			"student_add":       {Points: 25, Description: "Added a new student"},
			"document_upload":   {Points: 15, Description: "Uploaded a document"},
			"training_complete": {Points: 50, Description: "Completed a training"},
			"event_create":      {Points: 30, Description: "Created an event"},
			"iso_submission":    {Points: 40, Description: "Submitted ISO documentation"},
			"club_create":       {Points: 35, Description: "Created a new club"},
			"club_join":         {Points: 20, Description: "Joined a club"},
			"message_send":      {Points: 5, Description: "Sent a message"},
			"profile_edit":      {Points: 10, Description: "Updated profile"},
			"attendance_record": {Points: 15, Description: "Recorded attendance"},
			"recognition_award": {Points: 25, Description: "Awarded student recognition"},
		},
		Achievements: map[string]Rule{
			"student_add_10":     {Target: 10, Bonus: 200},
			"document_master":    {Target: 20, Bonus: 150},
			"training_organizer": {Target: 5, Bonus: 300},
			"event_master":       {Target: 10, Bonus: 400},
			"iso_compliance":     {Target: 1, Bonus: 500},
			"club_creator":       {Target: 3, Bonus: 250},
		},
		// monthly_engagement has no trigger below.
		Challenges: map[string]Rule{
			"daily_login":        {Target: 7, Bonus: 100},
			"weekly_documents":   {Target: 5, Bonus: 150},
			"weekly_events":      {Target: 2, Bonus: 200},
			"monthly_iso":        {Target: 3, Bonus: 300},
			"monthly_engagement": {Target: 50, Bonus: 400},
		},
		AchievementTrigger: map[string][]string{
			"student_add":       {"student_add_10"},
			"document_upload":   {"document_master"},
			"training_complete": {"training_organizer"},
			"event_create":      {"event_master"},
			"iso_submission":    {"iso_compliance"},
			"club_create":       {"club_creator"},
		},
		ChallengeTrigger: map[string][]string{
			"daily_login":     {"daily_login"},
			"document_upload": {"weekly_documents"},
			"event_create":    {"weekly_events"},
			"iso_submission":  {"monthly_iso"},
		},
	}
}

// Default returns a fresh catalog with the standard point economy.
func Default() *Catalog {
	return New(DefaultTables())
}
