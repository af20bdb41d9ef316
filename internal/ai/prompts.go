package ai

const rankPrompt = `You match equipment problem reports.

Problem report:
%s

Candidate records (one per line, "number: text"):
%s

Return the numbers of the candidates that describe the same or a closely
related problem, most similar first. Leave out unrelated candidates.
Respond ONLY with JSON: {"similar": [1, ...]}`

const diagnosisPrompt = `You are an experienced commercial equipment technician.

Equipment: %s
Problem description:
%s

Give the most likely causes and a concrete fix for each, in the same order.
Respond ONLY with JSON:
{"possible_causes": ["..."], "suggested_solutions": ["..."],
 "estimated_cost": "...", "parts_needed": ["..."], "diagnosis_confidence": 0-100}`

const extractPrompt = `Which kind of equipment is this message about?

Message:
%s

Answer with a short generic equipment type such as "oven", "fridge" or
"dishwasher", or an empty string if no equipment is mentioned.
Respond ONLY with JSON: {"equipment_type": "..."}`

const enhancePrompt = `Rewrite this equipment problem report so a technician can act on it.
Keep every fact, add none, and stay under %d characters.

Equipment: %s
Report:
%s

Respond ONLY with JSON: {"description": "..."}`

const categorizePrompt = `Classify this equipment problem.

Equipment type: %s
Problem:
%s

Pick one to three labels from this list only: %s
Respond ONLY with JSON: {"categories": ["..."]}`
