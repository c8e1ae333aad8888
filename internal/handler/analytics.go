package handler

import "github.com/hitoshi/socialburst/internal/model"

// analyticsView は分析ページのテンプレートデータ。
type analyticsView struct {
	Engagement  []platformSeries
	Followers   []platformSeries
	PostTypes   []postTypeShare
	BestContent []bestContent
}

type platformSeries struct {
	Name      string
	Facebook  int
	Instagram int
	Twitter   int
	YouTube   int
}

type postTypeShare struct {
	Name  string
	Value int
}

type bestContent struct {
	Title       string
	Platform    model.Platform
	Kind        string
	Engagements string
}

// sampleAnalytics は分析ページに表示するサンプル値。
var sampleAnalytics = analyticsView{
	Engagement: []platformSeries{
		{"Week 1", 120, 150, 80, 90},
		{"Week 2", 140, 160, 90, 100},
		{"Week 3", 150, 180, 100, 120},
		{"Week 4", 180, 220, 110, 150},
	},
	Followers: []platformSeries{
		{"Jan", 1200, 1500, 800, 900},
		{"Feb", 1400, 1600, 900, 1000},
		{"Mar", 1500, 1800, 1000, 1200},
		{"Apr", 1800, 2200, 1100, 1500},
		{"May", 2000, 2500, 1300, 1800},
	},
	PostTypes: []postTypeShare{
		{"Image", 50},
		{"Video", 30},
		{"Text", 15},
		{"Link", 5},
	},
	BestContent: []bestContent{
		{"Summer Collection Preview", model.PlatformInstagram, "Image Post", "4,320"},
		{"Product Demo Video", model.PlatformYouTube, "Video Post", "3,845"},
		{"Customer Story Feature", model.PlatformFacebook, "Image Post", "3,210"},
		{"Industry News Update", model.PlatformTwitter, "Text Post", "2,780"},
	},
}
