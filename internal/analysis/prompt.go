package analysis

import (
	"fmt"
	"strconv"
	"strings"
)

// ImageRole identifies what an attached image depicts.
type ImageRole string

const (
	ImageBefore    ImageRole = "before"
	ImageAfter     ImageRole = "after"
	ImageReference ImageRole = "reference"
)

// ImageRef points at an image the caller must resolve and attach, in order.
// ProductSKU is set for reference images only.
type ImageRef struct {
	Role       ImageRole
	ProductSKU string
	Path       string
}

// PromptPayload is the model-facing request: instruction text plus the images
// it refers to. The text numbers images by their position in OrderedImages,
// starting at 1.
type PromptPayload struct {
	Text          string
	OrderedImages []ImageRef
}

// NoDescription replaces an absent meal description in the prompt.
const NoDescription = "No description provided"

const taskIntro = `# Meal Analysis Task

## Context
You are analyzing before and after images of a meal to determine how much of each product was consumed.
Reference images show each product at a known weight on a plate of known dimensions; use them to calibrate portion size.
`

const taskSteps = `
## Your Task
1. Analyze the before and after meal images.
2. Using the reference images with known weights, estimate for every product listed above:
   - the weight of the product BEFORE the meal (visible in the before image)
   - the weight of the product AFTER the meal (remaining in the after image)
   - the weight consumed
3. Base your estimates on visual cues such as portion size, volume, plate coverage and comparison with the reference images.

## Expected Output Format
Respond with a single JSON object in exactly this shape, weights in grams:

` + "```json" + `
{
  "products": [
    {
      "sku": "PRODUCT_SKU",
      "estimated_weight_before": 0.0,
      "estimated_weight_after": 0.0,
      "estimated_consumed": 0.0
    }
  ],
  "total_weight": {
    "estimated_before": 0.0,
    "estimated_after": 0.0,
    "estimated_consumed": 0.0
  },
  "confidence_level": "HIGH|MEDIUM|LOW",
  "reasoning": "Brief explanation of how you made your estimates"
}
` + "```" + `
`

// Assemble builds the prompt payload for sub. Images are ordered before,
// after, then every product's reference pictures in product order and
// picture order within a product. Products without reference pictures keep
// their section.
func Assemble(sub *MealSubmission) *PromptPayload {
	images := make([]ImageRef, 0, 2+countReferencePictures(sub))
	images = append(images,
		ImageRef{Role: ImageBefore, Path: sub.PictureBefore},
		ImageRef{Role: ImageAfter, Path: sub.PictureAfter},
	)

	var b strings.Builder
	b.WriteString(taskIntro)

	b.WriteString("\n## Input Images\n")
	fmt.Fprintf(&b, "- [image 1] Before meal image: %s\n", sub.PictureBefore)
	fmt.Fprintf(&b, "- [image 2] After meal image: %s\n", sub.PictureAfter)

	b.WriteString("\n## Products in the Meal\n")
	b.WriteString("The meal contains the following products. Each lists its reference images with known weights.\n")
	for _, p := range sub.Products {
		fmt.Fprintf(&b, "\n### %s (SKU: %s)\n", p.Name, p.SKU)
		if len(p.ReferencePictures) == 0 {
			b.WriteString("No reference images available for this product.\n")
			continue
		}
		b.WriteString("Reference images with known weights:\n")
		for _, pic := range p.ReferencePictures {
			images = append(images, ImageRef{Role: ImageReference, ProductSKU: p.SKU, Path: pic.ImageURL})
			fmt.Fprintf(&b, "- [image %d] Image: %s - Weight: %sg on plate %s with dimensions: upper diameter %scm, lower diameter %scm, depth %scm\n",
				len(images),
				pic.ImageURL,
				formatNumber(pic.Weight),
				pic.Plate.PlateID,
				formatNumber(pic.Plate.UpperDiameter),
				formatNumber(pic.Plate.LowerDiameter),
				formatNumber(pic.Plate.Depth),
			)
		}
	}

	b.WriteString(taskSteps)

	description := sub.Description
	if strings.TrimSpace(description) == "" {
		description = NoDescription
	}
	b.WriteString("\n## Additional Information\n")
	fmt.Fprintf(&b, "- The total meal weight before was %sg (including plate)\n", formatNumber(sub.WeightBefore))
	fmt.Fprintf(&b, "- Description: %q\n", description)

	return &PromptPayload{Text: b.String(), OrderedImages: images}
}

func countReferencePictures(sub *MealSubmission) int {
	n := 0
	for _, p := range sub.Products {
		n += len(p.ReferencePictures)
	}
	return n
}

// formatNumber prints the shortest decimal form: 120, 3.5, 80.25.
func formatNumber(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
