package pipeline

import "fmt"

const segmentationPrompt = `Analyze the provided floor plan and identify every enclosed area.
For each area return a bounding box and infer its dimensions from any text labels on the plan.
Walls decide what is a separate room: an open space serving several functions, such as a
kitchen and dining area with no wall between them, is one combined space.
Include walls, doors and windows in the bounding box.`

const assemblyPrompt = `Assemble one complete 3D isometric view of the whole property.
Take the overall layout and room positions from the original floor plan, and the details of each
room from the furnished isometric views that follow it. The result must be a single cohesive,
photorealistic view of the floor with every room furnished as in its own view, placed and
oriented exactly as on the plan.`

func stylePrompt(style string) string {
	return fmt.Sprintf("Write a detailed but concise description of the '%s' interior design style, "+
		"covering the color palette, furniture materials and shapes, lighting and accessories. "+
		"It will guide image generation. Do not add an introduction or a conclusion.", style)
}

func unfurnishedPrompt(name, dimensions string) string {
	return fmt.Sprintf("Create a clean, unfurnished 3D isometric view of the room in this cropped floor plan. "+
		"The room is the '%s' and measures about %s. Model only this room, bounded by its walls, "+
		"showing walls and floor with no furniture, decoration or ceiling. Use a plain white background "+
		"and no text or labels. Keep doors and windows where the plan puts them.", name, dimensions)
}

func furnishPrompt(name, style string) string {
	return fmt.Sprintf("Furnish this unfurnished isometric view of the '%s' completely, following the style "+
		"description below. The result must be a photorealistic, well decorated room whose walls and "+
		"windows match the input exactly.\n\nStyle description:\n%s", name, style)
}

func interiorPrompt(name string, shots int) string {
	return fmt.Sprintf("From this furnished isometric view of the '%s', create %d photorealistic eye-level "+
		"photos taken from inside the room, each from a different angle, like professional real estate "+
		"photography. Keep style, furniture and colors identical to the isometric view and respect its "+
		"layout and viewing angles.", name, shots)
}
