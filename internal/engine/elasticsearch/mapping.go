package elasticsearch

// DefaultIndexName is the default Elasticsearch index used for listing documents.
const DefaultIndexName = "facetsearch_listings"

// buildIndexMapping returns the JSON mapping for the listings index. Title and
// description use the wildcard type so free text can be matched as a
// case-insensitive substring. Every attribute is indexed as a keyword so enum,
// list and boolean values share one term representation.
func buildIndexMapping() string {
	return `{
  "settings": {
    "number_of_shards": 1,
    "number_of_replicas": 0
  },
  "mappings": {
    "dynamic_templates": [
      {
        "attributes_as_keywords": {
          "path_match": "attributes.*",
          "mapping": { "type": "keyword", "ignore_above": 256 }
        }
      }
    ],
    "properties": {
      "id":          { "type": "keyword" },
      "title":       { "type": "wildcard" },
      "description": { "type": "wildcard" },
      "price":       { "type": "double" },
      "location":    { "type": "keyword" },
      "categoryId":  { "type": "keyword" },
      "images":      { "type": "keyword", "index": false },
      "attributes":  { "type": "object", "dynamic": true },
      "createdAt":   { "type": "date" },
      "updatedAt":   { "type": "date" }
    }
  }
}`
}
