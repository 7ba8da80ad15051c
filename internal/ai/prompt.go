package ai

import "strings"

// TagCategories are the categories the default instructions ask for
var TagCategories = []string{"subjects", "objects", "scene", "style", "colors", "mood"}

// DefaultInstructions asks the model for the JSON shape parseAnalysis expects
var DefaultInstructions = strings.TrimSpace(`
Analyze this image and respond with a single JSON object and nothing else:

{
  "description": "two or three sentences describing the image",
  "tags": {
    "subjects": ["..."],
    "objects": ["..."],
    "scene": ["..."],
    "style": ["..."],
    "colors": ["..."],
    "mood": ["..."]
  },
  "prompt": "a text-to-image prompt that would reproduce this image",
  "confidence": 0.0
}

Use lowercase tags of one to three words. Leave a category empty rather than guessing.
"confidence" is your confidence in the analysis, between 0 and 1.`)
