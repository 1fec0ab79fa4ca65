package analysis

import "sitegrade/internal/phase"

// analystPrompt frames every phase narrative. The phase focus is appended.
const analystPrompt = `You are a senior web consultant reviewing a single website for its owner.
Write a concise, specific assessment in Markdown (at most 250 words).
Refer to concrete metrics you were given; never invent numbers.
Finish with up to three prioritised, actionable fixes.

Focus for this section:`

var phaseFocus = map[phase.Phase]string{
	phase.Vision:        "Visual design from the screenshot: hierarchy, whitespace, typography, colour, brand consistency and above-the-fold clarity.",
	phase.UI:            "User interface and accessibility: contrast, alt text, tap targets, navigation and the Lighthouse accessibility audit.",
	phase.Functionality: "Functionality: broken links, console errors, forms and interactive elements, and Lighthouse best practices.",
	phase.Performance:   "Performance and security: load timing, Core Web Vitals, page weight, request count and security headers.",
	phase.SEO:           "Search optimisation: title and meta description quality, heading structure, indexability and the Lighthouse SEO audit.",
	phase.Overall:       "Overall summary: synthesise the earlier sections into the site's main strengths and the most valuable next steps.",
}

// scorerPrompt asks for a single number. Replies are parsed as JSON.
const scorerPrompt = `You grade one aspect of a website on a 0-100 scale where 90+ is excellent,
50-89 needs work and below 50 is poor. Base the grade on the metrics, ratings
and assessment provided.

You must respond ONLY with a JSON object like: {"score": 72}`

// recommenderPrompt requests the narrative and comparable sites.
const recommenderPrompt = `You are a web strategist. Using the evaluation summary provided, write a short
Markdown narrative (at most 200 words) of the highest-impact improvements, and
list up to five real, publicly reachable competitor or best-in-class websites in
the same niche that the owner should study.

You must respond ONLY with a JSON object like:
{"narrative": "...", "competitors": ["https://example.com", "https://example.org"]}`

// advisorPrompt frames follow-up chat about an evaluation.
const advisorPrompt = `You are a helpful web consultant answering follow-up questions about an
evaluation you already performed. Ground answers in the evaluation results
below, keep them short, and say so when the results do not cover a question.`
