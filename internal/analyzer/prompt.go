package analyzer

// Prompt is the instruction sent with every image.
const Prompt = `Analyze this image and return a JSON object describing it. Use exactly these fields:

{
  "suggestedName": "short descriptive file name, 2-5 words, lowercase, words separated by underscores, no extension",
  "title": "short human readable title",
  "description": "one or two sentences describing the image",
  "tags": ["keyword", "..."],
  "colors": ["dominant color", "..."],
  "objects": ["visible object", "..."],
  "category": "single broad category, e.g. landscape, portrait, food, architecture, document",
  "subcategory": "more specific category",
  "style": "photographic or artistic style",
  "mood": "overall mood",
  "confidence": 0.0
}

confidence is a number between 0 and 1. Return ONLY the JSON object, no explanations or markdown.`
