package backend

// TranscriptionPrompt is the fixed instruction sent with every page image.
const TranscriptionPrompt = `You are an expert in transcribing mathematical manuscripts.

This is a scanned page from a mathematical archive. The documents contain:
- Handwritten mathematical notes, often in French
- Mathematical formulas, diagrams, and category theory
- Dense notation in algebraic geometry and homological algebra

Transcribe this page accurately:
1. Use LaTeX for ALL mathematical notation: $x^2$, $\mathcal{O}_X$, $\lim_{n \to \infty}$
2. Preserve the original language exactly as written
3. Mark diagrams as: [DIAGRAM: brief description]
4. Mark illegible sections as: [illegible]
5. Preserve structure (headers, numbered items, etc.)

Begin transcription:`

// EmptyPagePlaceholder is recorded when a provider returns no text at all.
const EmptyPagePlaceholder = "[No text detected]"
