package nutrition

import (
	"encoding/json"
	"fmt"
	"math"
	"strings"
)

// Food is one item recognised in a free-text query.
type Food struct {
	Name        string  `json:"food_name"`
	ServingQty  float64 `json:"serving_qty"`
	ServingUnit string  `json:"serving_unit"`
	Calories    float64 `json:"nf_calories"`
}

// Estimate is the calorie estimate for one query.
type Estimate struct {
	Query    string
	Calories int
	Foods    []Food
}

type nutrientsPayload struct {
	Foods []Food `json:"foods"`
}

// ParseNutrientsPayload sums nf_calories over every food in a natural/nutrients response.
func ParseNutrientsPayload(query string, data []byte) (Estimate, error) {
	if len(data) == 0 {
		return Estimate{}, fmt.Errorf("parse nutrients payload: empty payload")
	}
	var payload nutrientsPayload
	if err := json.Unmarshal(data, &payload); err != nil {
		return Estimate{}, fmt.Errorf("parse nutrients payload: decode: %w", err)
	}

	total := 0.0
	foods := make([]Food, 0, len(payload.Foods))
	for _, food := range payload.Foods {
		food.Name = strings.TrimSpace(food.Name)
		if food.Calories < 0 {
			food.Calories = 0
		}
		total += food.Calories
		foods = append(foods, food)
	}
	return Estimate{Query: query, Calories: int(math.Round(total)), Foods: foods}, nil
}
