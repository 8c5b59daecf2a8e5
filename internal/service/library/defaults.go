package library

var defaultScripts = []ScriptInput{
	{
		Name: "Sales Introduction",
		Content: "Hello [Name], this is [Agent] calling from [Company].\n\n" +
			"I noticed your interest in our services and wanted to personally reach out.\n\n" +
			"Are you available for a quick chat about how we can help?",
		Category: "sales",
	},
	{
		Name: "Customer Follow-up",
		Content: "Hi [Name], this is [Agent] from [Company] following up on our previous conversation.\n\n" +
			"I wanted to check if you had any questions about the information we discussed?",
		Category: "followup",
	},
	{
		Name: "Support Check-in",
		Content: "Hello [Name], this is [Agent] from [Company] Support.\n\n" +
			"I'm calling to ensure everything is working smoothly for you and address any concerns you might have.",
		Category: "support",
	},
}

var defaultMessages = []MessageInput{
	{
		Name: "Standard Follow-up",
		Content: "Hello, this is [Agent] from [Company]. We're following up on your inquiry. " +
			"Please call us back at [Number] when you have a moment. Thank you!",
	},
	{
		Name: "Sales Outreach",
		Content: "Hi there, this is [Agent] from [Company]. I'd like to discuss how we can help with your needs. " +
			"Please call me back at [Number]. Have a great day!",
	},
	{
		Name: "Support Check-in",
		Content: "Hello, this is [Agent] from [Company] Support. Calling to ensure everything is working properly. " +
			"If you need assistance, please call us at [Number]. Thank you!",
	},
}
